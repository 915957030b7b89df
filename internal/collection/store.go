// Package collection implements the tiered get/save policy for named
// collections.
//
// Reads try the cloud first, then the local cache, then the compiled-in seed.
// Writes always land in the local cache synchronously and are pushed to the
// cloud in the background while the cloud is considered available. Cloud
// failures never reach the caller: they flip the availability tracker and the
// call degrades to local data.
package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aweris/sitestore/internal/availability"
	"github.com/aweris/sitestore/internal/cache"
	"github.com/aweris/sitestore/internal/cloud"
	"github.com/aweris/sitestore/internal/seed"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// DefaultTimeout bounds the cloud read attempt in Get.
const DefaultTimeout = 2 * time.Second

// ErrLocalWrite is returned by Save when the local cache rejected the write.
var ErrLocalWrite = errors.New("collection: local write failed")

// Records is an ordered list of opaque JSON records.
type Records = []json.RawMessage

// Remote is the subset of the cloud client used by the store.
type Remote interface {
	GetValue(ctx context.Context, key string) (json.RawMessage, error)
	PutValue(ctx context.Context, key string, value json.RawMessage) error
}

// WarningFunc receives user-facing warnings.
type WarningFunc func(message string)

type Store struct {
	cache   cache.Cache
	remote  Remote
	tracker *availability.Tracker
	seed    *seed.Source
	timeout time.Duration
	warn    WarningFunc
	log     *logrus.Logger

	pushes conc.WaitGroup
}

type Option func(*Store)

func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithSeed(src *seed.Source) Option {
	return func(s *Store) {
		if src != nil {
			s.seed = src
		}
	}
}

func WithWarningHandler(fn WarningFunc) Option {
	return func(s *Store) {
		if fn != nil {
			s.warn = fn
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.log = logger
		}
	}
}

// New builds a store. remote may be nil for local-only deployments.
func New(c cache.Cache, remote Remote, tracker *availability.Tracker, opts ...Option) *Store {
	s := &Store{
		cache:   c,
		remote:  remote,
		tracker: tracker,
		seed:    seed.Empty(),
		timeout: DefaultTimeout,
		warn:    func(string) {},
		log:     logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current records for key. It never fails: every cloud
// problem falls back to the cache, then the seed, then an empty list.
func (s *Store) Get(ctx context.Context, key string) Records {
	if s.cloudReady() {
		records, err := s.fetch(ctx, key)
		switch {
		case err == nil:
			s.cacheRecords(ctx, key, records)
			return records
		case errors.Is(err, cloud.ErrNotFound):
			// nothing written upstream yet
		case ctx.Err() != nil:
			// the caller gave up; that says nothing about the cloud
		default:
			s.tracker.MarkUnavailable(err)
		}
	}
	return s.local(ctx, key)
}

func (s *Store) fetch(ctx context.Context, key string) (Records, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.remote.GetValue(ctx, key)
	if err != nil {
		return nil, err
	}

	var records Records
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if records == nil {
		records = Records{}
	}
	return records, nil
}

// local resolves key from the cache, falling back to the seed. A seed hit is
// written to the cache so the next read sees the same data.
func (s *Store) local(ctx context.Context, key string) Records {
	logger := s.log.WithFields(logrus.Fields{"component": "collection", "key": key})

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.WithError(err).Warn("read local cache")
	}
	if ok {
		var records Records
		if err := json.Unmarshal(data, &records); err == nil {
			if records == nil {
				records = Records{}
			}
			return records
		}
		logger.Warn("local cache holds an unreadable value, ignoring it")
	}

	records, ok := s.seed.Lookup(key)
	if !ok {
		return Records{}
	}
	s.cacheRecords(ctx, key, records)
	return records
}

func (s *Store) cacheRecords(ctx context.Context, key string, records Records) {
	data, err := encode(records)
	if err == nil {
		err = s.cache.Set(ctx, key, data)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"component": "collection",
			"key":       key,
		}).WithError(err).Warn("refresh local cache")
	}
}

// Save writes records to the local cache and, while the cloud is available,
// schedules a detached push. It returns as soon as the local write is done;
// the only error it reports is a failed local write.
func (s *Store) Save(ctx context.Context, key string, records Records) (*Push, error) {
	if records == nil {
		records = Records{}
	}
	data, err := encode(records)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}

	if err := s.cache.Set(ctx, key, data); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("save %s: %w", key, err)
		}
		if errors.Is(err, cache.ErrQuotaExceeded) {
			s.warn("本地存储空间已满，请先导出备份并清理图片等大文件后再保存。 Local storage is full: export a backup and remove large files before saving again.")
		} else {
			s.warn("本地保存失败，请导出备份后重试。 Saving locally failed: export a backup and try again.")
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrLocalWrite, key, err)
	}

	if !s.cloudReady() {
		return donePush(key), nil
	}

	p := newPush(key)
	detached := context.WithoutCancel(ctx)
	s.pushes.Go(func() {
		err := s.remote.PutValue(detached, key, data)
		if err != nil {
			s.tracker.MarkUnavailable(err)
		}
		p.finish(err)
	})
	return p, nil
}

// Wait blocks until every detached push has finished.
func (s *Store) Wait() {
	s.pushes.Wait()
}

func (s *Store) cloudReady() bool {
	return s.remote != nil && s.tracker.Available()
}

// encode serializes records compactly and without HTML escaping, so rich-text
// fields are stored exactly as the editor produced them.
func encode(records Records) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
