package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

type putRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type successResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// handleGetValue answers missing keys with 200 and a null body.
func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "key is required"})
		return
	}

	data, ok, err := s.store.Get(r.Context(), kvPrefix+key)
	if err != nil {
		s.fail(w, r, "read value", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if !ok {
		writeRaw(w, http.StatusOK, "application/json", []byte("null"))
		return
	}
	writeRaw(w, http.StatusOK, "application/json", data)
}

func (s *Server) handlePutValue(w http.ResponseWriter, r *http.Request) {
	var req putRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "key is required"})
		return
	}
	if len(bytes.TrimSpace(req.Value)) == 0 {
		req.Value = json.RawMessage("null")
	}

	if err := s.store.Set(r.Context(), kvPrefix+req.Key, req.Value); err != nil {
		s.fail(w, r, "write value", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if !validFileKey(key) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid key"})
		return
	}

	data, ok, err := s.store.Get(r.Context(), filePrefix+key)
	if err != nil {
		s.fail(w, r, "read file", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}

	contentType := "application/octet-stream"
	if t, ok, err := s.store.Get(r.Context(), mimePrefix+key); err == nil && ok && len(t) > 0 {
		contentType = string(t)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	writeRaw(w, http.StatusOK, contentType, data)
}

// handleUploadFile accepts either a raw body or a multipart form with a
// "file" field.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if !validFileKey(key) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid key"})
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxUpload)
	contentType := r.Header.Get("Content-Type")

	var (
		data []byte
		err  error
	)
	if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType == "multipart/form-data" {
		r.Body = body
		data, contentType, err = readMultipartFile(r, s.maxUpload)
	} else {
		data, err = io.ReadAll(body)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}

	if err := s.store.Set(r.Context(), filePrefix+key, data); err != nil {
		s.fail(w, r, "write file", err)
		return
	}
	if contentType != "" {
		if err := s.store.Set(r.Context(), mimePrefix+key, []byte(contentType)); err != nil {
			s.fail(w, r, "write file type", err)
			return
		}
	}

	s.log.WithFields(logrus.Fields{
		"component": "server",
		"key":       key,
		"size":      len(data),
		"type":      contentType,
	}).Info("file stored")

	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		URL:     s.filePath + "?key=" + url.QueryEscape(key),
	})
}

func readMultipartFile(r *http.Request, limit int64) ([]byte, string, error) {
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, "", err
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, header.Header.Get("Content-Type"), nil
}

func validFileKey(key string) bool {
	return key != "" && len(key) <= 255 && !strings.ContainsAny(key, "/\\") && key != "." && key != ".."
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.log.WithFields(logrus.Fields{
		"component": "server",
		"method":    r.Method,
		"path":      r.URL.Path,
	}).WithError(err).Error(op)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: op + " failed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, "application/json", data)
}

func writeRaw(w http.ResponseWriter, status int, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
