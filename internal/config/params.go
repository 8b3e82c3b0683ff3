package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/omero-biomero/tusgate/pkg"
	"gopkg.in/yaml.v2"
)

const (
	DefaultConfigFile = "conf/tusgate.yml"

	EnvBaseDir   = "TUSGATE_DIR"
	EnvAddr      = "TUSGATE_ADDR"
	EnvJwtSecret = "TUSGATE_JWT_SECRET"
)

type Params struct {
	Addr                    string   `yaml:"addr"`
	BaseDir                 string   `yaml:"base_dir"`
	DataDir                 string   `yaml:"data_dir"`
	UploadDir               string   `yaml:"upload_dir"`
	DestinationDir          string   `yaml:"destination_dir"`
	LogDir                  string   `yaml:"log_dir"`
	LeveldbFile             string   `yaml:"leveldb_file"`
	GroupMappingsFile       string   `yaml:"group_mappings_file"`
	LogLevel                string   `yaml:"log_level"`
	BasePath                string   `yaml:"base_path"`
	MaxSize                 int64    `yaml:"max_size"`
	ChunkBufferSize         int      `yaml:"chunk_buffer_size"`
	Extensions              []string `yaml:"extensions"`
	MetadataBackend         string   `yaml:"metadata_backend"`
	DuplicatePolicy         string   `yaml:"duplicate_policy"`
	MaxDuplicateAttempts    int      `yaml:"max_duplicate_attempts"`
	AllowUnownedUploads     bool     `yaml:"allow_unowned_uploads"`
	RequireTusResumable     bool     `yaml:"require_tus_resumable"`
	RespectForwardedHeaders bool     `yaml:"respect_forwarded_headers"`
	CheckFreeSpace          bool     `yaml:"check_free_space"`
	UploadExpire            string   `yaml:"upload_expire"`
	ReapInterval            string   `yaml:"reap_interval"`
	EnableCrossOrigin       bool     `yaml:"enable_cross_origin"`
	CrossOriginAllow        []string `yaml:"cross_origin_allow"`
	EnableMetrics           bool     `yaml:"enable_metrics"`
	ReadTimeout             int      `yaml:"read_timeout"`
	ReadHeaderTimeout       int      `yaml:"read_header_timeout"`
	WriteTimeout            int      `yaml:"write_timeout"`
	IdleTimeout             int      `yaml:"idle_timeout"`

	AuthMode    string `yaml:"auth_mode"`
	AuthUrl     string `yaml:"auth_url"`
	AuthTimeout int    `yaml:"auth_timeout"`
	JwtSecret   string `yaml:"jwt_secret"`

	OrderSink           string `yaml:"order_sink"`
	OrderWebhookUrl     string `yaml:"order_webhook_url"`
	OrderWebhookTimeout int    `yaml:"order_webhook_timeout"`
}

// DefaultParams is the configuration written on first start.
func DefaultParams() *Params {
	return &Params{
		Addr:                    "127.0.0.1:8080",
		DataDir:                 "data",
		UploadDir:               "data/uploads",
		DestinationDir:          "files",
		LogDir:                  "log",
		LeveldbFile:             "data/tusgate.db",
		GroupMappingsFile:       "conf/group_mappings.json",
		LogLevel:                "info",
		BasePath:                "/upload/",
		MaxSize:                 50 << 30,
		ChunkBufferSize:         1 << 20,
		MetadataBackend:         "file",
		DuplicatePolicy:         "proceed",
		MaxDuplicateAttempts:    1000,
		AllowUnownedUploads:     true,
		RespectForwardedHeaders: true,
		CheckFreeSpace:          true,
		UploadExpire:            "72h",
		ReapInterval:            "1h",
		EnableCrossOrigin:       true,
		EnableMetrics:           true,
		ReadHeaderTimeout:       10,
		IdleTimeout:             120,
		AuthMode:                "header",
		AuthTimeout:             5,
		OrderSink:               "leveldb",
		OrderWebhookTimeout:     10,
	}
}

// DefaultConfigYaml renders DefaultParams as yaml.
func DefaultConfigYaml() string {
	data, err := yaml.Marshal(DefaultParams())
	if err != nil {
		panic(err)
	}
	return "# tusgate configuration\n" + string(data)
}

// LoadParams reads fileName over the defaults, writing the defaults first when
// the file does not exist yet.
func LoadParams(fileName string) (*Params, error) {
	p := DefaultParams()
	if !pkg.FileExists(fileName) {
		if err := pkg.CreateDirectories(filepath.Dir(fileName), 0775); err != nil {
			return nil, err
		}
		if !pkg.WriteFile(fileName, DefaultConfigYaml()) {
			return nil, fmt.Errorf("write default config file \"%s\" fail", fileName)
		}
	}
	if err := p.SetValuesFromFile(fileName); err != nil {
		return nil, err
	}
	return p, nil
}

// SetValuesFromFile uses a yaml config file to initiate the configuration entity.
func (p *Params) SetValuesFromFile(fileName string) error {
	if !pkg.FileExists(fileName) {
		return errors.New(fmt.Sprintf("config file not found: \"%s\"", fileName))
	}

	yamlConfig, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(yamlConfig, p)
}

func (p *Params) applyEnv() {
	if dir := os.Getenv(EnvBaseDir); dir != "" {
		p.BaseDir = dir
	}
	if addr := os.Getenv(EnvAddr); addr != "" {
		p.Addr = addr
	}
	if secret := os.Getenv(EnvJwtSecret); secret != "" {
		p.JwtSecret = secret
	}
}

func (p *Params) expandFilenames() {
	if p.BaseDir == "" {
		p.BaseDir = "."
	}
	p.BaseDir = pkg.ExpandFilename(p.BaseDir)

	p.DataDir = p.underBase(p.DataDir)
	p.UploadDir = p.underBase(p.UploadDir)
	p.DestinationDir = p.underBase(p.DestinationDir)
	p.LogDir = p.underBase(p.LogDir)
	p.LeveldbFile = p.underBase(p.LeveldbFile)
	p.GroupMappingsFile = p.underBase(p.GroupMappingsFile)
}

func (p *Params) underBase(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.BaseDir, name)
}

func (p *Params) validate() error {
	switch p.MetadataBackend {
	case "file", "leveldb":
	default:
		return fmt.Errorf("unknown metadata_backend %q", p.MetadataBackend)
	}
	switch p.DuplicatePolicy {
	case "proceed", "fail":
	default:
		return fmt.Errorf("unknown duplicate_policy %q", p.DuplicatePolicy)
	}
	switch p.AuthMode {
	case "header", "jwt", "auth_url":
	default:
		return fmt.Errorf("unknown auth_mode %q", p.AuthMode)
	}
	if p.AuthMode == "jwt" && p.JwtSecret == "" {
		return errors.New("auth_mode jwt needs jwt_secret")
	}
	if p.AuthMode == "auth_url" && p.AuthUrl == "" {
		return errors.New("auth_mode auth_url needs auth_url")
	}
	switch p.OrderSink {
	case "leveldb", "webhook":
	default:
		return fmt.Errorf("unknown order_sink %q", p.OrderSink)
	}
	if p.OrderSink == "webhook" && p.OrderWebhookUrl == "" {
		return errors.New("order_sink webhook needs order_webhook_url")
	}
	if p.MaxSize < 0 {
		return errors.New("max_size must not be negative")
	}
	if p.ChunkBufferSize <= 0 {
		p.ChunkBufferSize = 1 << 20
	}
	if p.MaxDuplicateAttempts <= 0 {
		p.MaxDuplicateAttempts = 1000
	}
	return nil
}
