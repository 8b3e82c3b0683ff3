package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/omero-biomero/tusgate/pkg"
	log "github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

type Config struct {
	levelDB      *leveldb.DB
	params       *Params
	uploadExpire time.Duration
	reapInterval time.Duration
}

// NewConfig loads the yaml file (written with defaults when missing), applies
// environment overrides and opens the service levelDB.
func NewConfig(configFile string) (*Config, error) {
	params, err := LoadParams(configFile)
	if err != nil {
		return nil, err
	}
	params.applyEnv()
	return NewConfigFromParams(params)
}

// NewConfigFromParams skips the config file, mostly useful in tests.
func NewConfigFromParams(params *Params) (*Config, error) {
	params.expandFilenames()
	if err := params.validate(); err != nil {
		return nil, err
	}
	conf := &Config{params: params}

	var err error
	if conf.uploadExpire, err = parseDuration(params.UploadExpire); err != nil {
		return nil, fmt.Errorf("upload_expire: %w", err)
	}
	if conf.reapInterval, err = parseDuration(params.ReapInterval); err != nil {
		return nil, fmt.Errorf("reap_interval: %w", err)
	}

	if err = conf.createDirectories(); err != nil {
		return nil, err
	}

	opts := &opt.Options{
		CompactionTableSize: 1024 * 1024 * 20,
		WriteBuffer:         1024 * 1024 * 20,
	}
	levelDB, err := leveldb.OpenFile(params.LeveldbFile, opts)
	if err != nil {
		return nil, fmt.Errorf("open db file %s fail, maybe has opening: %w", params.LeveldbFile, err)
	}
	conf.levelDB = levelDB

	return conf, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func (c *Config) RegisterExit() {
	if err := c.LevelDB().Close(); err != nil {
		log.Info("close levelDB error: ", err)
	}
}

func (c *Config) createDirectories() error {
	dirs := []string{c.params.BaseDir, c.DataDir(), c.UploadDir(), c.DestinationDir(), c.LogDir(),
		filepath.Dir(c.params.GroupMappingsFile)}

	for _, dir := range dirs {
		if err := pkg.CreateDirectories(dir, 0775); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Addr() string {
	return c.params.Addr
}

func (c *Config) BaseDir() string {
	return c.params.BaseDir
}

func (c *Config) DataDir() string {
	return c.params.DataDir
}

func (c *Config) UploadDir() string {
	return c.params.UploadDir
}

func (c *Config) DestinationDir() string {
	return c.params.DestinationDir
}

func (c *Config) LogDir() string {
	return c.params.LogDir
}

func (c *Config) LeveldbFile() string {
	return c.params.LeveldbFile
}

func (c *Config) GroupMappingsFile() string {
	return c.params.GroupMappingsFile
}

func (c *Config) LogLevel() string {
	return c.params.LogLevel
}

// BasePath always starts and ends with a slash.
func (c *Config) BasePath() string {
	base := c.params.BasePath
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

func (c *Config) MaxSize() int64 {
	return c.params.MaxSize
}

func (c *Config) ChunkBufferSize() int {
	return c.params.ChunkBufferSize
}

func (c *Config) Extensions() []string {
	exts := make([]string, len(c.params.Extensions))
	copy(exts, c.params.Extensions)
	return exts
}

func (c *Config) MetadataBackend() string {
	return c.params.MetadataBackend
}

func (c *Config) DuplicatePolicy() string {
	return c.params.DuplicatePolicy
}

func (c *Config) MaxDuplicateAttempts() int {
	return c.params.MaxDuplicateAttempts
}

func (c *Config) AllowUnownedUploads() bool {
	return c.params.AllowUnownedUploads
}

func (c *Config) RequireTusResumable() bool {
	return c.params.RequireTusResumable
}

func (c *Config) RespectForwardedHeaders() bool {
	return c.params.RespectForwardedHeaders
}

func (c *Config) CheckFreeSpace() bool {
	return c.params.CheckFreeSpace
}

func (c *Config) UploadExpire() time.Duration {
	return c.uploadExpire
}

func (c *Config) ReapInterval() time.Duration {
	return c.reapInterval
}

func (c *Config) EnableCrossOrigin() bool {
	return c.params.EnableCrossOrigin
}

// CrossOriginAllow lists the origins CORS responses name, empty means any
// origin without credentials.
func (c *Config) CrossOriginAllow() []string {
	return c.params.CrossOriginAllow
}

func (c *Config) EnableMetrics() bool {
	return c.params.EnableMetrics
}

func (c *Config) ReadTimeout() int {
	return c.params.ReadTimeout
}

func (c *Config) ReadHeaderTimeout() int {
	return c.params.ReadHeaderTimeout
}

func (c *Config) WriteTimeout() int {
	return c.params.WriteTimeout
}

func (c *Config) IdleTimeout() int {
	return c.params.IdleTimeout
}

func (c *Config) AuthMode() string {
	return c.params.AuthMode
}

func (c *Config) AuthUrl() string {
	return c.params.AuthUrl
}

func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.params.AuthTimeout) * time.Second
}

func (c *Config) JwtSecret() string {
	return c.params.JwtSecret
}

func (c *Config) OrderSink() string {
	return c.params.OrderSink
}

func (c *Config) OrderWebhookUrl() string {
	return c.params.OrderWebhookUrl
}

func (c *Config) OrderWebhookTimeout() time.Duration {
	return time.Duration(c.params.OrderWebhookTimeout) * time.Second
}

func (c *Config) LevelDB() *leveldb.DB {
	return c.levelDB
}
