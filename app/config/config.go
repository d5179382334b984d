package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppCfg struct {
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// BackendCfg describes the local vLLM processes, one per GPU.
type BackendCfg struct {
	Launch        bool          `mapstructure:"launch"`
	Endpoints     []string      `mapstructure:"endpoints"`
	GPUNum        int           `mapstructure:"gpu_num"`
	Host          string        `mapstructure:"host"`
	BasePort      int           `mapstructure:"base_port"`
	ModelPath     string        `mapstructure:"model_path"`
	ServedName    string        `mapstructure:"served_name"`
	Python        string        `mapstructure:"python"`
	ExtraArgs     []string      `mapstructure:"extra_args"`
	ReadyTimeout  time.Duration `mapstructure:"ready_timeout"`
	ReadyInterval time.Duration `mapstructure:"ready_interval"`
	StopGrace     time.Duration `mapstructure:"stop_grace"`
}

type LLMCfg struct {
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PoolCfg struct {
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

type EmbeddingCfg struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	BatchSize      int           `mapstructure:"batch_size"`
	QueryCacheSize int           `mapstructure:"query_cache_size"`
}

type OOVCfg struct {
	Threshold       float64 `mapstructure:"threshold"`
	LexicalFallback bool    `mapstructure:"lexical_fallback"`
}

type VocabCfg struct {
	ProvincePath string `mapstructure:"province_path"`
	FullPath     string `mapstructure:"full_path"`
}

// CacheCfg selects the result cache: "memory", "redis", "hybrid" or "none".
type CacheCfg struct {
	Driver   string        `mapstructure:"driver"`
	Size     int           `mapstructure:"size"`
	RedisURL string        `mapstructure:"redis_url"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// BatchCfg bounds batch resolution. Workers 0 means one per endpoint.
type BatchCfg struct {
	Workers  int           `mapstructure:"workers"`
	JobTTL   time.Duration `mapstructure:"job_ttl"`
	MaxItems int           `mapstructure:"max_items"`
}

type ServerCfg struct {
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Config struct {
	App       AppCfg       `mapstructure:"app"`
	Backend   BackendCfg   `mapstructure:"backend"`
	LLM       LLMCfg       `mapstructure:"llm"`
	Pool      PoolCfg      `mapstructure:"pool"`
	Embedding EmbeddingCfg `mapstructure:"embedding"`
	OOV       OOVCfg       `mapstructure:"oov"`
	Vocab     VocabCfg     `mapstructure:"vocab"`
	Cache     CacheCfg     `mapstructure:"cache"`
	Batch     BatchCfg     `mapstructure:"batch"`
	Server    ServerCfg    `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("backend.launch", true)
	v.SetDefault("backend.gpu_num", 4)
	v.SetDefault("backend.host", "localhost")
	v.SetDefault("backend.base_port", 10800)
	v.SetDefault("backend.model_path", "assets/pretrained/Qwen2-7B-Instruct")
	v.SetDefault("backend.served_name", "Qwen2-7B-Instruct")
	v.SetDefault("backend.python", "python")
	v.SetDefault("backend.ready_timeout", 10*time.Minute)
	v.SetDefault("backend.ready_interval", 2*time.Second)
	v.SetDefault("backend.stop_grace", 10*time.Second)

	v.SetDefault("llm.model", "Qwen2-7B-Instruct")
	v.SetDefault("llm.api_key", "None")
	v.SetDefault("llm.timeout", 5*time.Second)

	v.SetDefault("pool.acquire_timeout", 30*time.Second)

	v.SetDefault("embedding.base_url", "http://localhost:10900/v1")
	v.SetDefault("embedding.api_key", "None")
	v.SetDefault("embedding.model", "bge-large-zh-v1.5")
	v.SetDefault("embedding.timeout", 10*time.Second)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.query_cache_size", 4096)

	v.SetDefault("oov.threshold", 0.8)
	v.SetDefault("oov.lexical_fallback", false)

	v.SetDefault("vocab.province_path", "assets/geo_dict/province.txt")
	v.SetDefault("vocab.full_path", "assets/geo_dict/all.txt")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.size", 10000)
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.prefix", "geo_recog:")
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.job_ttl", time.Hour)
	v.SetDefault("batch.max_items", 10000)

	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
}

// Load reads path (optional; an empty path or a missing file falls back to
// defaults) and applies environment overrides such as BACKEND_GPU_NUM or
// the short forms GPU_NUM, APP_PORT, APP_ENV and REDIS_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"backend.gpu_num": "GPU_NUM",
		"app.port":        "APP_PORT",
		"app.env":         "APP_ENV",
		"cache.redis_url": "REDIS_URL",
	} {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.Backend.GPUNum < 1:
		return fmt.Errorf("backend.gpu_num must be at least 1, got %d", c.Backend.GPUNum)
	case c.OOV.Threshold < 0 || c.OOV.Threshold > 1:
		return fmt.Errorf("oov.threshold must be in [0,1], got %v", c.OOV.Threshold)
	case c.LLM.Timeout <= 0:
		return fmt.Errorf("llm.timeout must be positive")
	}
	switch c.Cache.Driver {
	case "memory", "redis", "hybrid", "none":
	default:
		return fmt.Errorf("unknown cache.driver %q", c.Cache.Driver)
	}
	return nil
}

// IsProduction reports whether production logging applies.
func (c *Config) IsProduction() bool { return c.App.Env == "production" }

// EndpointURLs lists backend.endpoints when set, otherwise
// http://<host>:<base_port+i>/v1 for every GPU.
func (c *Config) EndpointURLs() []string {
	if len(c.Backend.Endpoints) > 0 {
		return append([]string(nil), c.Backend.Endpoints...)
	}
	urls := make([]string, c.Backend.GPUNum)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://%s:%d/v1", c.Backend.Host, c.Backend.BasePort+i)
	}
	return urls
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
