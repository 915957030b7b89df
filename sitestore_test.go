package sitestore_test

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aweris/sitestore"
	"github.com/aweris/sitestore/internal/cache"
	"github.com/aweris/sitestore/internal/server"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "app-secret"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newCloud(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(server.New(cache.NewMemory(), server.WithToken(token), server.WithLogger(quietLogger())))
	t.Cleanup(srv.Close)
	return srv
}

func openSite(t *testing.T, opts ...sitestore.Option) *sitestore.Site {
	t.Helper()
	base := []sitestore.Option{
		sitestore.WithCacheDriver(sitestore.DriverMemory),
		sitestore.WithLogger(quietLogger()),
	}
	site, err := sitestore.Open(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = site.Close() })
	return site
}

func withCloud(srv *httptest.Server) []sitestore.Option {
	return []sitestore.Option{
		sitestore.WithCloud(srv.URL+server.DefaultKVPath, srv.URL+server.DefaultFilePath),
		sitestore.WithToken(token),
	}
}

func records(t *testing.T, raw ...string) sitestore.Records {
	t.Helper()
	out := make(sitestore.Records, len(raw))
	for i, r := range raw {
		require.True(t, json.Valid([]byte(r)), r)
		out[i] = json.RawMessage(r)
	}
	return out
}

func TestSite_LocalMode(t *testing.T) {
	ctx := context.Background()
	site := openSite(t)

	assert.False(t, site.Available())
	assert.Len(t, site.Get(ctx, "news_v3"), 2, "seed defaults on a fresh install")
	assert.Empty(t, site.Get(ctx, "jobs_v3"))

	push, err := site.Save(ctx, "jobs_v3", records(t, `{"id":"j1","title":"造价工程师"}`))
	require.NoError(t, err)
	assert.False(t, push.Dispatched())

	got := site.Get(ctx, "jobs_v3")
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"j1","title":"造价工程师"}`, string(got[0]))

	url := site.UploadAsset(ctx, sitestore.File{Name: "logo.png", ContentType: "image/png", Data: []byte("png")})
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}

func TestSite_CloudRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newCloud(t)

	writer := openSite(t, withCloud(srv)...)
	require.True(t, writer.Available())

	push, err := writer.Save(ctx, "news_v3", records(t, `{"id":"9","title":"<b>年会</b>"}`))
	require.NoError(t, err)
	require.True(t, push.Dispatched())
	require.NoError(t, push.Wait())

	reader := openSite(t, withCloud(srv)...)
	got := reader.Get(ctx, "news_v3")
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"9","title":"<b>年会</b>"}`, string(got[0]))
	assert.True(t, reader.Available())

	url := writer.UploadAsset(ctx, sitestore.File{Name: "Cover.JPG", Data: []byte("jpeg")})
	assert.True(t, strings.HasPrefix(url, server.DefaultFilePath+"?key="), url)
	assert.True(t, strings.HasSuffix(url, ".jpg"), url)
}

func TestSite_SwitchesToLocalMode(t *testing.T) {
	ctx := context.Background()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()

	site := openSite(t,
		sitestore.WithCloud(broken.URL+"/api/kv", broken.URL+"/api/file"),
		sitestore.WithToken(token),
	)

	var notified atomic.Int32
	cancel := site.Subscribe(func(s sitestore.Status) {
		assert.False(t, s.Available)
		notified.Add(1)
	})
	defer cancel()

	assert.Len(t, site.Get(ctx, "news_v3"), 2)
	assert.False(t, site.Available())

	site.Get(ctx, "projects_v3")
	assert.Equal(t, int32(1), notified.Load())

	push, err := site.Save(ctx, "news_v3", records(t, `{"id":"1"}`))
	require.NoError(t, err)
	assert.False(t, push.Dispatched())
}

func TestSite_QuotaWarning(t *testing.T) {
	ctx := context.Background()
	var warning string
	site := openSite(t,
		sitestore.WithCacheQuota(128),
		sitestore.WithWarningHandler(func(msg string) { warning = msg }),
	)

	big := `{"id":"1","body":"` + strings.Repeat("x", 256) + `"}`
	_, err := site.Save(ctx, "news_v3", records(t, big))
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(warning), "export")
}

func TestSite_FullBackupRestore(t *testing.T) {
	ctx := context.Background()
	srv := newCloud(t)
	source := openSite(t, withCloud(srv)...)

	url := source.UploadAsset(ctx, sitestore.File{Name: "plan.pdf", Data: []byte("%PDF")})
	doc, err := json.Marshal(map[string]string{"id": "p1", "file": url})
	require.NoError(t, err)
	push, err := source.Save(ctx, "projects_v3", sitestore.Records{doc})
	require.NoError(t, err)
	require.NoError(t, push.Wait())

	var steps []string
	b, err := source.CreateFullBackup(ctx, func(s string) { steps = append(steps, s) })
	require.NoError(t, err)
	assert.Len(t, b.Assets, 1)
	assert.False(t, b.Partial())
	assert.NotEmpty(t, steps)

	target := openSite(t, withCloud(newCloud(t))...)
	res, err := target.RestoreFullBackup(ctx, b.Archive, nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	got := target.Get(ctx, "projects_v3")
	require.Len(t, got, 1)
	assert.JSONEq(t, string(doc), string(got[0]))

	again, err := target.CreateFullBackup(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, b.Assets, again.Assets, "assets restored under their original keys")
}

func TestSite_ExportImport(t *testing.T) {
	ctx := context.Background()
	site := openSite(t, sitestore.WithoutSeed(), sitestore.WithCollections("news_v3", "team_v3"))
	assert.Equal(t, []string{"news_v3", "team_v3"}, site.Collections())

	res := site.ImportData(ctx, []byte(`{"news_v3":[{"id":"1"}],"team_v3":[],"legacy":[1]}`))
	require.True(t, res.Success, res.Message)

	out, err := site.ExportData(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"news_v3":[{"id":"1"}],"team_v3":[]}`, string(out))

	res = site.ImportData(ctx, []byte(`{"news_v3":{"id":"1"}}`))
	assert.False(t, res.Success)
}

func TestSite_PublishAndPullBackup(t *testing.T) {
	ctx := context.Background()
	reg := httptest.NewServer(registry.New(registry.Logger(log.New(io.Discard, "", 0))))
	defer reg.Close()
	ref := strings.TrimPrefix(reg.URL, "http://") + "/acme/site-backup:latest"

	site := openSite(t, sitestore.WithBackupRemote(ref), sitestore.WithInsecureRegistry(true))
	_, err := site.Save(ctx, "team_v3", records(t, `{"id":"t1","name":"张工"}`))
	require.NoError(t, err)

	digest, err := site.PublishBackup(ctx, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "sha256:"))

	b, err := site.PullBackup(ctx)
	require.NoError(t, err)

	fresh := openSite(t)
	res, err := fresh.RestoreFullBackup(ctx, b.Archive, nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Len(t, fresh.Get(ctx, "team_v3"), 1)

	_, err = openSite(t).PublishBackup(ctx, nil)
	assert.ErrorIs(t, err, sitestore.ErrNoRemote)
}

func TestSite_Roles(t *testing.T) {
	ctx := context.Background()
	site := openSite(t)

	_, err := site.Save(ctx, "roles_v3", records(t,
		`{"id":"hr","name":"人事","permissions":{"jobs":{"read":true,"write":true,"delete":false}}}`,
	))
	require.NoError(t, err)

	hr := site.Role(ctx, "hr")
	require.NotNil(t, hr)
	assert.True(t, sitestore.Can(hr, "jobs", sitestore.Write))
	assert.False(t, sitestore.Can(hr, "jobs", sitestore.Delete))
	assert.False(t, sitestore.Can(hr, "news", sitestore.Read))

	assert.True(t, sitestore.Can(site.Role(ctx, "super_admin"), "backup", sitestore.Delete))
	assert.Nil(t, site.Role(ctx, "nobody"))
	assert.False(t, sitestore.Can(nil, "news", sitestore.Read))
}

func TestSite_StoredRoleOverridesBuiltin(t *testing.T) {
	ctx := context.Background()
	site := openSite(t)

	before := site.Role(ctx, "editor")
	require.NotNil(t, before)
	assert.True(t, sitestore.Can(before, "jobs", sitestore.Write), "seeded editor matches the built-in")
	assert.False(t, sitestore.Can(before, "jobs", sitestore.Delete))

	_, err := site.Save(ctx, "roles_v3", records(t,
		`"not a role"`,
		`{"id":"editor","name":"内容编辑","permissions":{"jobs":{"read":true,"write":true,"delete":true}}}`,
	))
	require.NoError(t, err)

	editor := site.Role(ctx, "editor")
	require.NotNil(t, editor)
	assert.True(t, sitestore.Can(editor, "jobs", sitestore.Delete))
	assert.False(t, sitestore.Can(editor, "news", sitestore.Write), "the stored rules replace the built-in ones")

	admin := site.Role(ctx, "super_admin")
	require.NotNil(t, admin, "built-ins fill in ids the collection lacks")
	assert.True(t, admin.IsSystem)
}

func TestOpen_PersistentDrivers(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{sitestore.DriverBadger, sitestore.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			dir := t.TempDir()
			opts := []sitestore.Option{
				sitestore.WithCacheDir(dir),
				sitestore.WithCacheDriver(driver),
				sitestore.WithLogger(quietLogger()),
			}

			site, err := sitestore.Open(opts...)
			require.NoError(t, err)
			_, err = site.Save(ctx, "honors_v3", records(t, `{"id":"h9"}`))
			require.NoError(t, err)
			require.NoError(t, site.Close())

			site, err = sitestore.Open(opts...)
			require.NoError(t, err)
			defer site.Close()
			got := site.Get(ctx, "honors_v3")
			require.Len(t, got, 1)
			assert.JSONEq(t, `{"id":"h9"}`, string(got[0]))
		})
	}
}
