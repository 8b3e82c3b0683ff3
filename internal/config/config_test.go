package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvBaseDir, dir)
	file := filepath.Join(dir, "conf", "tusgate.yml")

	conf, err := NewConfig(file)
	require.NoError(t, err)
	defer conf.RegisterExit()

	assert.FileExists(t, file)
	assert.Equal(t, "127.0.0.1:8080", conf.Addr())
	assert.Equal(t, "header", conf.AuthMode())
	assert.Empty(t, conf.CrossOriginAllow())
	assert.Equal(t, int64(50<<30), conf.MaxSize())
	assert.Equal(t, 1<<20, conf.ChunkBufferSize())
	assert.Equal(t, "/upload/", conf.BasePath())
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), conf.UploadDir())
	assert.Equal(t, filepath.Join(dir, "files"), conf.DestinationDir())
	assert.Equal(t, 72*time.Hour, conf.UploadExpire())
	assert.True(t, conf.AllowUnownedUploads())
	assert.DirExists(t, conf.UploadDir())
	assert.DirExists(t, conf.DestinationDir())
	assert.NotNil(t, conf.LevelDB())
}

func TestNewConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tusgate.yml")
	content := `
addr: ":9999"
base_dir: ` + dir + `
base_path: files
max_size: 1024
duplicate_policy: fail
allow_unowned_uploads: false
upload_expire: "0"
extensions: [".tif", ".lif"]
cross_origin_allow: ["https://omero.example"]
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	conf, err := NewConfig(file)
	require.NoError(t, err)
	defer conf.RegisterExit()

	assert.Equal(t, ":9999", conf.Addr())
	assert.Equal(t, []string{"https://omero.example"}, conf.CrossOriginAllow())
	assert.Equal(t, "/files/", conf.BasePath())
	assert.Equal(t, int64(1024), conf.MaxSize())
	assert.Equal(t, "fail", conf.DuplicatePolicy())
	assert.False(t, conf.AllowUnownedUploads())
	assert.Equal(t, time.Duration(0), conf.UploadExpire())
	assert.Equal(t, []string{".tif", ".lif"}, conf.Extensions())
	// untouched keys keep their defaults
	assert.Equal(t, "header", conf.AuthMode())
	assert.Equal(t, 1000, conf.MaxDuplicateAttempts())
}

func TestNewConfigFromParamsValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Params)
	}{
		{"metadata backend", func(p *Params) { p.MetadataBackend = "redis" }},
		{"duplicate policy", func(p *Params) { p.DuplicatePolicy = "overwrite" }},
		{"auth mode", func(p *Params) { p.AuthMode = "ldap" }},
		{"jwt without secret", func(p *Params) { p.AuthMode = "jwt" }},
		{"auth url without url", func(p *Params) { p.AuthMode = "auth_url" }},
		{"webhook without url", func(p *Params) { p.OrderSink = "webhook" }},
		{"bad duration", func(p *Params) { p.UploadExpire = "soon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			p.BaseDir = t.TempDir()
			tt.modify(p)
			_, err := NewConfigFromParams(p)
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfigYaml(t *testing.T) {
	out := DefaultConfigYaml()
	assert.Contains(t, out, "max_size: 53687091200")
	assert.Contains(t, out, "duplicate_policy: proceed")
}
