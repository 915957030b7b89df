package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aweris/sitestore/internal/cache"
	"github.com/aweris/sitestore/internal/cloud"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cache.NewMemory(), WithToken("secret"), WithMaxUpload(1<<10), WithLogger(quietLogger())))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server, token string) *cloud.Client {
	t.Helper()
	c, err := cloud.New(srv.URL+DefaultKVPath, srv.URL+DefaultFilePath, cloud.WithAuth(cloud.StaticToken(token)))
	require.NoError(t, err)
	return c
}

func TestServer_KVRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, newServer(t), "secret")

	_, err := c.GetValue(ctx, "news_v3")
	assert.ErrorIs(t, err, cloud.ErrNotFound, "missing keys answer null")

	require.NoError(t, c.PutValue(ctx, "news_v3", json.RawMessage(`[{"id":"1","title":"新闻"}]`)))

	v, err := c.GetValue(ctx, "news_v3")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","title":"新闻"}]`, string(v))
}

func TestServer_FileRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	c := newClient(t, srv, "secret")

	url, err := c.UploadFile(ctx, "1700000000000-abcd1234.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/api/file?key=1700000000000-abcd1234.png", url)

	anonymous := newClient(t, srv, "")
	data, err := anonymous.DownloadFile(ctx, "1700000000000-abcd1234.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	resp, err := http.Get(srv.URL + url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	_, err = anonymous.DownloadFile(ctx, "missing.png")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestServer_MultipartUpload(t *testing.T) {
	srv := newServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "brochure.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.7"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/file?key=brochure.pdf", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := newClient(t, srv, "").DownloadFile(context.Background(), "brochure.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)
}

func TestServer_RejectsBadToken(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)

	for _, token := range []string{"", "wrong"} {
		c := newClient(t, srv, token)

		_, err := c.GetValue(ctx, "news_v3")
		var se *cloud.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.Status)

		err = c.PutValue(ctx, "news_v3", json.RawMessage(`[]`))
		require.ErrorAs(t, err, &se)

		_, err = c.UploadFile(ctx, "a.png", "image/png", []byte("x"))
		require.ErrorAs(t, err, &se)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/kv", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://www.example.cn")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Content-Type")
}

func TestServer_Validation(t *testing.T) {
	srv := newServer(t)

	do := func(method, path, body string) int {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer secret")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/api/kv", ""))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/api/kv", "{"))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/api/kv", `{"value":[]}`))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/api/file?key=../etc/passwd", "x"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, do(http.MethodPost, "/api/file?key=big.bin", strings.Repeat("x", 2<<10)))
	assert.Equal(t, http.StatusMethodNotAllowed, do(http.MethodDelete, "/api/kv?key=a", ""))
}

func TestServer_NoTokenConfigured(t *testing.T) {
	srv := httptest.NewServer(New(cache.NewMemory(), WithLogger(quietLogger())))
	defer srv.Close()

	c := newClient(t, srv, "")
	require.NoError(t, c.PutValue(context.Background(), "k", json.RawMessage(`[1]`)))
}
