// Package asset turns uploaded files into URLs that can be embedded in
// collection records.
//
// Files go to the cloud file endpoint when it is available. Any failure, or a
// session already running local-only, inlines the file as a base64 data URL
// instead, so an upload never fails from the caller's point of view.
package asset

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/aweris/sitestore/internal/availability"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNotDataURL = errors.New("asset: not a base64 data URL")

// File is an upload candidate.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// MediaType returns the declared content type, else one derived from the
// extension, else one sniffed from the content.
func (f File) MediaType() string {
	if f.ContentType != "" {
		return f.ContentType
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))); t != "" {
		return t
	}
	return http.DetectContentType(f.Data)
}

// Remote is the subset of the cloud client used for uploads.
type Remote interface {
	UploadFile(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type Uploader struct {
	remote  Remote
	tracker *availability.Tracker
	log     *logrus.Logger
	now     func() time.Time
}

// New returns an uploader. remote may be nil for local-only deployments.
func New(remote Remote, tracker *availability.Tracker, logger *logrus.Logger) *Uploader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Uploader{remote: remote, tracker: tracker, log: logger, now: time.Now}
}

// Upload returns a durable URL for f. A failed cloud upload is treated as a
// problem with this one file and leaves the availability tracker alone.
func (u *Uploader) Upload(ctx context.Context, f File) string {
	if u.remote == nil || !u.tracker.Available() {
		return DataURL(f)
	}

	key := u.newKey(f.Name)
	url, err := u.remote.UploadFile(ctx, key, f.MediaType(), f.Data)
	if err != nil {
		u.log.WithFields(logrus.Fields{
			"component": "asset",
			"file":      f.Name,
			"key":       key,
			"size":      len(f.Data),
		}).WithError(err).Warn("upload failed, inlining file as data URL")
		return DataURL(f)
	}
	return url
}

// newKey builds "<unix-millis>-<random>.<ext>" so concurrent uploads of the
// same file name never collide.
func (u *Uploader) newKey(name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s%s", u.now().UnixMilli(), suffix, strings.ToLower(filepath.Ext(name)))
}

// DataURL inlines f as "data:<type>;base64,<payload>".
func DataURL(f File) string {
	return "data:" + f.MediaType() + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// DecodeDataURL reverses DataURL.
func DecodeDataURL(s string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	contentType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrNotDataURL, err)
	}
	return contentType, data, nil
}
