// Package backup exports, imports and archives every known collection.
//
// A plain export is one JSON object keyed by collection name. A full backup
// is a zip archive holding that document as data/database.json plus every
// cloud-hosted asset referenced from it under assets/<key>. Assets are found
// by scanning the serialized document for the file endpoint's URL pattern, so
// references written in any other form are not picked up.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"

	"github.com/aweris/sitestore/internal/collection"
	"github.com/sirupsen/logrus"
)

const (
	DataEntry    = "data/database.json"
	AssetsPrefix = "assets/"

	DefaultConcurrency = 4
)

var (
	// ErrArchive marks a failure to produce or read the archive itself, as
	// opposed to individual assets that could not be fetched.
	ErrArchive = errors.New("backup: archive failed")
)

// Collections is the subset of the collection store the engine needs.
type Collections interface {
	Get(ctx context.Context, key string) collection.Records
	Save(ctx context.Context, key string, records collection.Records) (*collection.Push, error)
}

// Files fetches and stores cloud-hosted assets.
type Files interface {
	DownloadFile(ctx context.Context, key string) ([]byte, error)
	UploadFile(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Availability reports whether the cloud may be used for uploads.
type Availability interface {
	Available() bool
}

// ProgressFunc receives human-readable status lines while a long operation
// runs.
type ProgressFunc func(status string)

// Result is the outcome of an import.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	// Imported lists the collections that were written.
	Imported []string `json:"imported,omitempty"`
}

type Engine struct {
	store       Collections
	files       Files
	available   Availability
	keys        []string
	pattern     *regexp.Regexp
	concurrency int
	log         *logrus.Logger
}

type Option func(*Engine)

// WithFiles enables asset download and restore. pattern must capture the
// asset key in its first group.
func WithFiles(files Files, available Availability, pattern *regexp.Regexp) Option {
	return func(e *Engine) {
		e.files = files
		e.available = available
		e.pattern = pattern
	}
}

func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// New returns an engine over the given collection keys.
func New(store Collections, keys []string, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		keys:        slices.Clone(keys),
		concurrency: DefaultConcurrency,
		log:         logrus.New(),
	}
	slices.Sort(e.keys)
	e.keys = slices.Compact(e.keys)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Keys returns the collections covered by exports and imports.
func (e *Engine) Keys() []string {
	return slices.Clone(e.keys)
}

func (e *Engine) snapshot(ctx context.Context) map[string]collection.Records {
	doc := make(map[string]collection.Records, len(e.keys))
	for _, key := range e.keys {
		doc[key] = e.store.Get(ctx, key)
	}
	return doc
}

// Export serializes every known collection as indented JSON with sorted keys.
func (e *Engine) Export(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e.snapshot(ctx)); err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return buf.Bytes(), nil
}

// Import overwrites every known collection present in data. Unknown keys are
// ignored. Nothing is written unless the whole document is valid.
func (e *Engine) Import(ctx context.Context, data []byte) Result {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return Result{Success: false, Message: "invalid format"}
	}

	pending := make(map[string]collection.Records)
	for _, key := range e.keys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var records collection.Records
		if err := json.Unmarshal(raw, &records); err != nil {
			return Result{Success: false, Message: fmt.Sprintf("invalid format: %s is not a list", key)}
		}
		if records == nil {
			records = collection.Records{}
		}
		pending[key] = records
	}

	imported := make([]string, 0, len(pending))
	for _, key := range e.keys {
		records, ok := pending[key]
		if !ok {
			continue
		}
		if _, err := e.store.Save(ctx, key, records); err != nil {
			e.log.WithFields(logrus.Fields{
				"component": "backup",
				"key":       key,
			}).WithError(err).Error("import stopped")
			return Result{Success: false, Message: err.Error(), Imported: imported}
		}
		imported = append(imported, key)
	}

	return Result{Success: true, Imported: imported}
}

// AssetKeys returns the sorted, deduplicated asset keys referenced in text.
func (e *Engine) AssetKeys(text []byte) []string {
	if e.pattern == nil {
		return nil
	}

	seen := make(map[string]struct{})
	for _, m := range e.pattern.FindAllSubmatch(text, -1) {
		key := string(m[1])
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		seen[key] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
