package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port            int    `env:"PORT" envDefault:"8080"`
	DataDir         string `env:"DATA_DIR" envDefault:"/data"`
	BackendURL      string `env:"BACKEND_URL" envDefault:"http://127.0.0.1:12357"`
	PrinterConfig   string `env:"PRINTER_CONFIG" envDefault:""`
	CacheDir        string `env:"CACHE_DIR" envDefault:""`
	LayerCacheSize  int    `env:"LAYER_CACHE_ENTRIES" envDefault:"100"`
	ThumbMemoryMB   int    `env:"THUMB_MEMORY_MB" envDefault:"50"`
	ThumbDiskMB     int    `env:"THUMB_DISK_MB" envDefault:"512"`
	VipsMaxCacheMB  int    `env:"VIPS_MAX_CACHE_MB" envDefault:"128"`
	VipsConcurrency int    `env:"VIPS_CONCURRENCY" envDefault:"1"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigin   string `env:"ALLOWED_ORIGIN" envDefault:""`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
