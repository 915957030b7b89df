package cloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/api/kv", srv.URL+"/api/file", WithAuth(StaticToken("secret")))
	require.NoError(t, err)
	return c
}

func TestNew_ValidatesEndpoints(t *testing.T) {
	_, err := New("", "http://x/api/file")
	assert.Error(t, err)

	_, err = New("ftp://x/api/kv", "http://x/api/file")
	assert.Error(t, err)

	_, err = New("http://x/api/kv", "http://x/api/file")
	assert.NoError(t, err)

	for _, file := range []string{"https://files.example.com", "https://files.example.com/", "https://files.example.com/?key="} {
		_, err = New("https://files.example.com/api/kv", file)
		assert.ErrorIs(t, err, ErrNoFilePath, file)
	}
}

func TestGetValue(t *testing.T) {
	var gotAuth, gotKey, gotBuster string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.URL.Query().Get("key")
		gotBuster = r.URL.Query().Get("t")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, `[{"id":"1","title":"A"}]`)
	}))

	v, err := c.GetValue(context.Background(), "news_v3")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","title":"A"}]`, string(v))
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "news_v3", gotKey)
	assert.NotEmpty(t, gotBuster)
}

func TestGetValue_NotFound(t *testing.T) {
	for name, h := range map[string]http.HandlerFunc{
		"404": func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		},
		"null body": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, "null\n")
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newClient(t, h).GetValue(context.Background(), "news_v3")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestGetValue_Failures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "kv binding missing", http.StatusInternalServerError)
		}))
		_, err := c.GetValue(context.Background(), "news_v3")

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusInternalServerError, se.Status)
		assert.Contains(t, se.Error(), "kv binding missing")
	})

	t.Run("html fallback page", func(t *testing.T) {
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<!doctype html>")
		}))
		_, err := c.GetValue(context.Background(), "news_v3")
		assert.ErrorIs(t, err, ErrContentType)
	})

	t.Run("timeout", func(t *testing.T) {
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := c.GetValue(ctx, "news_v3")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPutValue(t *testing.T) {
	var body putRequest
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true}`)
	}))

	err := c.PutValue(context.Background(), "news_v3", json.RawMessage(`[{"id":"2"}]`))
	require.NoError(t, err)
	assert.Equal(t, "news_v3", body.Key)
	assert.JSONEq(t, `[{"id":"2"}]`, string(body.Value))
}

func TestPutValue_Status(t *testing.T) {
	notFound := newClient(t, http.NotFoundHandler())
	assert.NoError(t, notFound.PutValue(context.Background(), "k", json.RawMessage(`[]`)))

	unauthorized := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	var se *StatusError
	require.ErrorAs(t, unauthorized.PutValue(context.Background(), "k", json.RawMessage(`[]`)), &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
}

func TestUploadAndDownloadFile(t *testing.T) {
	stored := map[string][]byte{}
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
			data, _ := io.ReadAll(r.Body)
			stored[key] = data
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(uploadResponse{Success: true, URL: "/api/file?key=" + key})
		case http.MethodGet:
			data, ok := stored[key]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(data)
		}
	}))

	ctx := context.Background()
	u, err := c.UploadFile(ctx, "1700000000000-abcd1234.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "/api/file?key=1700000000000-abcd1234.png", u)

	data, err := c.DownloadFile(ctx, "1700000000000-abcd1234.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)

	_, err = c.DownloadFile(ctx, "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadFile_Rejected(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":false,"error":"bucket not bound"}`)
	}))
	_, err := c.UploadFile(context.Background(), "a.png", "", []byte("x"))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestAssetPattern(t *testing.T) {
	c, err := New("https://site.example/api/kv", "https://site.example/api/file")
	require.NoError(t, err)

	assert.Equal(t, "https://site.example/api/file?key=a.png", c.FileURL("a.png"))

	text := `{"cover":"/api/file?key=1-a.png","gallery":["https://site.example/api/file?key=2-b.jpg"],` +
		`"html":"<img src=\"/api/file?key=3-c.webp\">","other":"/api/files?key=nope.png"}`

	var keys []string
	for _, m := range c.AssetPattern().FindAllStringSubmatch(text, -1) {
		keys = append(keys, m[1])
	}
	assert.Equal(t, []string{"1-a.png", "2-b.jpg", "3-c.webp"}, keys)
}
