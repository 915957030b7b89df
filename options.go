package sitestore

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aweris/sitestore/internal/backup"
	"github.com/aweris/sitestore/internal/cache"
	"github.com/aweris/sitestore/internal/collection"
	"github.com/aweris/sitestore/internal/remote"
	"github.com/sirupsen/logrus"
)

// Cache drivers accepted by WithCacheDriver.
const (
	DriverBadger = cache.DriverBadger
	DriverSQLite = cache.DriverSQLite
	DriverMemory = cache.DriverMemory
)

// DefaultCollections are the collections managed by the admin panel.
var DefaultCollections = []string{
	"news_v3",
	"projects_v3",
	"honors_v3",
	"services_v3",
	"team_v3",
	"jobs_v3",
	"messages_v3",
	"settings_v3",
	"users_v3",
	"roles_v3",
}

// Authenticator provides registry credentials for backup publishing.
type Authenticator = remote.Authenticator

// BasicAuth is a username/password Authenticator.
type BasicAuth = remote.BasicAuth

// Options configures a Site.
type Options struct {
	CacheDir    string
	CacheDriver string
	CacheQuota  int64
	Compression bool

	KVEndpoint   string
	FileEndpoint string
	Token        string
	CloudEnabled bool
	Timeout      time.Duration
	HTTPClient   *http.Client

	Collections []string
	Seed        []byte
	NoSeed      bool
	Concurrency int

	BackupRef      string
	BackupAuth     Authenticator
	BackupInsecure bool

	Logger *logrus.Logger
	Warn   func(message string)
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		CacheDir:     DefaultCacheDir(),
		CacheDriver:  DriverBadger,
		CacheQuota:   cache.DefaultQuota,
		Compression:  true,
		CloudEnabled: true,
		Timeout:      collection.DefaultTimeout,
		Collections:  DefaultCollections,
		Concurrency:  backup.DefaultConcurrency,
	}
}

// WithCacheDir sets the directory holding the local cache.
func WithCacheDir(dir string) Option {
	return func(o *Options) { o.CacheDir = dir }
}

// WithCacheDriver selects the cache backend: badger, sqlite or memory.
func WithCacheDriver(driver string) Option {
	return func(o *Options) { o.CacheDriver = driver }
}

// WithCacheQuota caps the bytes the local cache may hold. 0 disables the cap.
func WithCacheQuota(n int64) Option {
	return func(o *Options) {
		if n >= 0 {
			o.CacheQuota = n
		}
	}
}

// WithCompression toggles zstd compression of cached values.
func WithCompression(enabled bool) Option {
	return func(o *Options) { o.Compression = enabled }
}

// WithCloud sets the KV and file endpoint URLs.
func WithCloud(kvEndpoint, fileEndpoint string) Option {
	return func(o *Options) {
		o.KVEndpoint = kvEndpoint
		o.FileEndpoint = fileEndpoint
	}
}

// WithToken sets the shared application token sent to the cloud.
func WithToken(token string) Option {
	return func(o *Options) { o.Token = token }
}

// WithCloudEnabled starts the site in local mode when false.
func WithCloudEnabled(enabled bool) Option {
	return func(o *Options) { o.CloudEnabled = enabled }
}

// WithTimeout bounds each cloud read.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) { o.HTTPClient = hc }
}

// WithCollections replaces the set of collections covered by export, import
// and backups.
func WithCollections(keys ...string) Option {
	return func(o *Options) {
		if len(keys) > 0 {
			o.Collections = keys
		}
	}
}

// WithSeed replaces the compiled-in defaults with a YAML document mapping
// collection keys to record lists.
func WithSeed(yamlDoc []byte) Option {
	return func(o *Options) {
		o.Seed = yamlDoc
		o.NoSeed = false
	}
}

// WithoutSeed disables default collections entirely.
func WithoutSeed() Option {
	return func(o *Options) {
		o.Seed = nil
		o.NoSeed = true
	}
}

// WithConcurrency sets the number of parallel asset downloads during backup.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithBackupRemote enables publishing backups to an OCI image ref.
func WithBackupRemote(imageRef string) Option {
	return func(o *Options) { o.BackupRef = imageRef }
}

// WithBackupAuth sets registry credentials. The docker keychain is used
// otherwise.
func WithBackupAuth(auth Authenticator) Option {
	return func(o *Options) { o.BackupAuth = auth }
}

// WithInsecureRegistry allows plain-HTTP registries.
func WithInsecureRegistry(insecure bool) Option {
	return func(o *Options) { o.BackupInsecure = insecure }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithWarningHandler receives user-facing warnings, such as a full local
// cache.
func WithWarningHandler(fn func(message string)) Option {
	return func(o *Options) { o.Warn = fn }
}

// DefaultCacheDir is $XDG_DATA_HOME/sitestore, falling back to
// ~/.local/share/sitestore.
func DefaultCacheDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "sitestore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "sitestore")
	}
	return ".sitestore"
}

func expandPath(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
