// Package server is a reference implementation of the cloud KV and file
// endpoints. It lets a deployment run the whole stack on one host and gives
// the client packages something real to talk to in tests.
package server

import (
	"net/http"

	"github.com/aweris/sitestore/internal/cache"
	"github.com/sirupsen/logrus"
)

const (
	DefaultKVPath   = "/api/kv"
	DefaultFilePath = "/api/file"

	// DefaultMaxUpload caps one uploaded file.
	DefaultMaxUpload = 20 << 20
)

// Key prefixes partitioning the backing store.
const (
	kvPrefix   = "kv/"
	filePrefix = "file/"
	mimePrefix = "mime/"
)

type Server struct {
	mux       *http.ServeMux
	store     cache.Cache
	token     string
	kvPath    string
	filePath  string
	maxUpload int64
	log       *logrus.Logger
}

type Option func(*Server)

// WithToken sets the shared bearer token. An empty token disables auth.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

func WithPaths(kvPath, filePath string) Option {
	return func(s *Server) {
		if kvPath != "" {
			s.kvPath = kvPath
		}
		if filePath != "" {
			s.filePath = filePath
		}
	}
}

func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// New returns a handler persisting values and files in store.
func New(store cache.Cache, opts ...Option) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		store:     store,
		kvPath:    DefaultKVPath,
		filePath:  DefaultFilePath,
		maxUpload: DefaultMaxUpload,
		log:       logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET "+s.kvPath, s.handleGetValue)
	s.mux.HandleFunc("POST "+s.kvPath, s.handlePutValue)
	s.mux.HandleFunc("GET "+s.filePath, s.handleGetFile)
	s.mux.HandleFunc("POST "+s.filePath, s.handleUploadFile)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Max-Age", "86400")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// file reads stay public so asset URLs work in plain <img> tags
	public := r.Method == http.MethodGet && r.URL.Path == s.filePath
	if !public && !s.authorized(r) {
		s.log.WithFields(logrus.Fields{
			"component": "server",
			"method":    r.Method,
			"path":      r.URL.Path,
			"remote":    r.RemoteAddr,
		}).Warn("rejected request without a valid token")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Success: false, Error: "unauthorized"})
		return
	}

	s.mux.ServeHTTP(w, r)
}
