package sitestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aweris/sitestore/internal/asset"
	"github.com/aweris/sitestore/internal/availability"
	"github.com/aweris/sitestore/internal/backup"
	"github.com/aweris/sitestore/internal/cache"
	"github.com/aweris/sitestore/internal/cloud"
	"github.com/aweris/sitestore/internal/collection"
	"github.com/aweris/sitestore/internal/permission"
	"github.com/aweris/sitestore/internal/remote"
	"github.com/aweris/sitestore/internal/seed"
	"github.com/sirupsen/logrus"
)

type (
	Records      = collection.Records
	Push         = collection.Push
	File         = asset.File
	Status       = availability.Status
	Backup       = backup.Backup
	Result       = backup.Result
	ProgressFunc = backup.ProgressFunc
	Role         = permission.Role
	Rule         = permission.Rule
	Action       = permission.Action
)

const (
	Read   = permission.Read
	Write  = permission.Write
	Delete = permission.Delete
)

// rolesKey holds the custom roles managed from the admin panel.
const rolesKey = "roles_v3"

// Can reports whether role may perform action on resource.
func Can(role *Role, resource string, action Action) bool {
	return permission.Can(role, resource, action)
}

// Site ties the local cache, the cloud endpoints and the backup engine
// together for one session.
type Site struct {
	cache    cache.Cache
	tracker  *availability.Tracker
	cloud    *cloud.Client
	store    *collection.Store
	uploader *asset.Uploader
	engine   *backup.Engine
	remote   *remote.OCIRemote
	log      *logrus.Logger
	closed   atomic.Bool
}

// Open builds a Site. Without cloud endpoints the site runs in local mode.
func Open(opts ...Option) (*Site, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = logrus.New()
	}

	src, err := seedSource(options)
	if err != nil {
		return nil, err
	}

	c, err := openCache(options)
	if err != nil {
		return nil, err
	}

	s := &Site{cache: c, log: logger}

	cloudConfigured := options.KVEndpoint != "" && options.FileEndpoint != ""
	if cloudConfigured {
		clientOpts := []cloud.Option{cloud.WithAuth(cloud.StaticToken(options.Token))}
		if options.HTTPClient != nil {
			clientOpts = append(clientOpts, cloud.WithHTTPClient(options.HTTPClient))
		}
		s.cloud, err = cloud.New(options.KVEndpoint, options.FileEndpoint, clientOpts...)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("configure cloud: %w", err)
		}
	}

	s.tracker = availability.New(cloudConfigured && options.CloudEnabled, logger)

	storeOpts := []collection.Option{
		collection.WithTimeout(options.Timeout),
		collection.WithSeed(src),
		collection.WithLogger(logger),
	}
	if options.Warn != nil {
		storeOpts = append(storeOpts, collection.WithWarningHandler(options.Warn))
	}

	engineOpts := []backup.Option{
		backup.WithConcurrency(options.Concurrency),
		backup.WithLogger(logger),
	}

	if s.cloud != nil {
		s.store = collection.New(c, s.cloud, s.tracker, storeOpts...)
		s.uploader = asset.New(s.cloud, s.tracker, logger)
		engineOpts = append(engineOpts, backup.WithFiles(s.cloud, s.tracker, s.cloud.AssetPattern()))
	} else {
		s.store = collection.New(c, nil, s.tracker, storeOpts...)
		s.uploader = asset.New(nil, s.tracker, logger)
	}
	s.engine = backup.New(s.store, options.Collections, engineOpts...)

	if options.BackupRef != "" {
		s.remote, err = remote.NewOCIRemote(options.BackupRef, options.BackupAuth, options.BackupInsecure)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"component":   "sitestore",
		"driver":      options.CacheDriver,
		"cloud":       s.tracker.Available(),
		"collections": len(s.engine.Keys()),
	}).Debug("site opened")

	return s, nil
}

func seedSource(o *Options) (*seed.Source, error) {
	switch {
	case o.NoSeed:
		return seed.Empty(), nil
	case o.Seed != nil:
		return seed.Parse(o.Seed)
	default:
		return seed.Default(), nil
	}
}

func openCache(o *Options) (cache.Cache, error) {
	copts := cache.Options{
		Driver:      o.CacheDriver,
		Quota:       o.CacheQuota,
		Compression: o.Compression,
	}
	if o.CacheDriver != DriverMemory {
		dir := expandPath(o.CacheDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		switch o.CacheDriver {
		case DriverSQLite:
			copts.Path = filepath.Join(dir, "cache.db")
		default:
			copts.Path = filepath.Join(dir, "badger")
		}
	}
	c, err := cache.Open(copts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return c, nil
}

// Get returns the records of a collection. It never fails.
func (s *Site) Get(ctx context.Context, key string) Records {
	return s.store.Get(ctx, key)
}

// Save stores records locally and schedules a cloud push. The returned error
// is non-nil only when the local write failed.
func (s *Site) Save(ctx context.Context, key string, records Records) (*Push, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.store.Save(ctx, key, records)
}

// UploadAsset returns a URL for f: a cloud file URL, or a data URL when the
// cloud is unavailable or the upload failed.
func (s *Site) UploadAsset(ctx context.Context, f File) string {
	return s.uploader.Upload(ctx, f)
}

// ExportData serializes every known collection as indented JSON.
func (s *Site) ExportData(ctx context.Context) ([]byte, error) {
	return s.engine.Export(ctx)
}

// ImportData applies an export document.
func (s *Site) ImportData(ctx context.Context, data []byte) Result {
	return s.engine.Import(ctx, data)
}

func (s *Site) CreateFullBackup(ctx context.Context, onProgress ProgressFunc) (*Backup, error) {
	return s.engine.CreateFullBackup(ctx, onProgress)
}

func (s *Site) RestoreFullBackup(ctx context.Context, archive []byte, onProgress ProgressFunc) (Result, error) {
	return s.engine.RestoreFullBackup(ctx, archive, onProgress)
}

// PublishBackup creates a full backup and pushes it to the backup remote,
// returning the manifest digest.
func (s *Site) PublishBackup(ctx context.Context, onProgress ProgressFunc) (string, error) {
	if s.remote == nil {
		return "", ErrNoRemote
	}

	b, err := s.engine.CreateFullBackup(ctx, onProgress)
	if err != nil {
		return "", err
	}

	if onProgress != nil {
		onProgress(fmt.Sprintf("Publishing to %s...", s.remote))
	}
	digest, err := s.remote.Push(ctx, remote.Snapshot{
		Archive:     b.Archive,
		CreatedAt:   b.CreatedAt,
		Collections: len(s.engine.Keys()),
		Assets:      len(b.Assets),
	})
	if err != nil {
		return "", fmt.Errorf("publish backup: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"component": "sitestore",
		"ref":       s.remote.String(),
		"digest":    digest,
		"assets":    len(b.Assets),
		"skipped":   len(b.Skipped),
	}).Info("backup published")
	return digest, nil
}

// PullBackup downloads the latest published backup archive.
func (s *Site) PullBackup(ctx context.Context) (*Backup, error) {
	if s.remote == nil {
		return nil, ErrNoRemote
	}

	snap, err := s.remote.Pull(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull backup: %w", err)
	}

	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Backup{Archive: snap.Archive, CreatedAt: createdAt}, nil
}

// BackupRef is the configured backup image ref, or "".
func (s *Site) BackupRef() string {
	if s.remote == nil {
		return ""
	}
	return s.remote.String()
}

// Available reports whether the site is still talking to the cloud.
func (s *Site) Available() bool {
	return s.tracker.Available()
}

// Subscribe registers fn for the switch to local mode.
func (s *Site) Subscribe(fn func(Status)) (cancel func()) {
	return s.tracker.Subscribe(fn)
}

// Collections lists the collections covered by export and backups.
func (s *Site) Collections() []string {
	return s.engine.Keys()
}

// Roles returns the roles stored in the roles collection, followed by the
// built-in roles whose ids the collection does not define. A stored role
// replaces the built-in with the same id. Malformed role records are skipped.
func (s *Site) Roles(ctx context.Context) []*Role {
	roles, err := permission.ParseRoles(s.store.Get(ctx, rolesKey))
	if err != nil {
		s.log.WithFields(logrus.Fields{"component": "sitestore", "key": rolesKey}).WithError(err).Warn("skipping malformed roles")
	}
	for _, builtin := range []*Role{permission.SuperAdmin(), permission.Editor()} {
		if permission.Find(roles, builtin.ID) == nil {
			roles = append(roles, builtin)
		}
	}
	return roles
}

// Role looks a role up by id, or returns nil.
func (s *Site) Role(ctx context.Context, id string) *Role {
	return permission.Find(s.Roles(ctx), id)
}

// CacheSize reports the bytes held by the local cache.
func (s *Site) CacheSize(ctx context.Context) (int64, error) {
	return s.cache.Size(ctx)
}

// Close waits for pending cloud pushes and closes the cache.
func (s *Site) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.store.Wait()
	return s.cache.Close()
}
