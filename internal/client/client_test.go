package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omero-biomero/tusgate/internal/auth"
	"github.com/omero-biomero/tusgate/internal/config"
	"github.com/omero-biomero/tusgate/internal/server"
)

func startServer(t *testing.T) (*httptest.Server, *config.Config) {
	gin.SetMode(gin.TestMode)
	params := config.DefaultParams()
	params.BaseDir = t.TempDir()
	params.CheckFreeSpace = false
	conf, err := config.NewConfigFromParams(params)
	require.NoError(t, err)
	t.Cleanup(conf.RegisterExit)
	s, err := server.New(conf)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, conf
}

func writeTree(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0775))
		require.NoError(t, os.WriteFile(full, []byte(content), 0664))
	}
	return dir
}

func TestListFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{"b.tif": "b", "sub/a.tif": "a", "c.lif": ""})
	files, err := ListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "b.tif"),
		filepath.Join(dir, "c.lif"),
		filepath.Join(dir, "sub", "a.tif"),
	}, files)

	_, err = ListFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestUploadDir(t *testing.T) {
	ts, conf := startServer(t)
	dir := writeTree(t, map[string]string{
		"one.tif":        strings.Repeat("1", 3000),
		"nested/two.tif": strings.Repeat("2", 100),
		"empty.tif":      "",
	})

	header := http.Header{}
	header.Set(auth.HeaderUserID, "11")
	results, err := UploadDir(context.Background(), Options{
		URL:       ts.URL + "/upload/",
		Dir:       dir,
		Workers:   2,
		Header:    header,
		ChunkSize: 1024,
		ResumeDB:  filepath.Join(t.TempDir(), "resume.db"),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 0, Failed(results))
	for _, r := range results {
		assert.True(t, strings.HasPrefix(r.URL, ts.URL+"/upload/"), r.URL)
	}

	owner := filepath.Join(conf.DestinationDir(), "user_11")
	got, err := os.ReadFile(filepath.Join(owner, "one.tif"))
	require.NoError(t, err)
	assert.Len(t, got, 3000)
	assert.FileExists(t, filepath.Join(owner, "two.tif"))
	assert.FileExists(t, filepath.Join(owner, "empty.tif"))
}

func TestUploadDirWithoutCredentials(t *testing.T) {
	ts, _ := startServer(t)
	dir := writeTree(t, map[string]string{"a.tif": "a"})

	results, err := UploadDir(context.Background(), Options{URL: ts.URL + "/upload/", Dir: dir})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, 1, Failed(results))
}

func TestUploadDirCancelled(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.tif": "a", "b.tif": "b"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := UploadDir(ctx, Options{URL: "http://127.0.0.1:1/upload/", Dir: dir})
	require.NoError(t, err)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestLeveldbStore(t *testing.T) {
	store, err := NewLeveldbStore(filepath.Join(t.TempDir(), "resume.db"))
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.Get("fp")
	assert.False(t, ok)
	store.Set("fp", "http://example.com/upload/1")
	url, ok := store.Get("fp")
	assert.True(t, ok)
	assert.Equal(t, "http://example.com/upload/1", url)
	store.Delete("fp")
	_, ok = store.Get("fp")
	assert.False(t, ok)
}
