package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

const (
	CategoryAdvanced = "advanced"

	keyThumbnailDiskTTLDays = "thumbnailDiskTtlDays"

	defaultThumbnailDiskTTL = 7 * 24 * time.Hour
)

// PrinterConfig is a read-only view of the printer's key-value configuration
// file: a JSON object of category -> key -> value. Missing file or categories
// behave as empty.
type PrinterConfig struct {
	categories map[string]map[string]string
}

func LoadPrinterConfig(path string) *PrinterConfig {
	pc := &PrinterConfig{categories: map[string]map[string]string{}}
	if path == "" {
		return pc
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pc
	}

	if err := json.Unmarshal(data, &pc.categories); err != nil {
		pc.categories = map[string]map[string]string{}
	}
	return pc
}

func (pc *PrinterConfig) GetString(key, category string) string {
	if cat, ok := pc.categories[category]; ok {
		return cat[key]
	}
	return ""
}

// ThumbnailDiskTTL returns the disk-cache TTL. An unset key means the 7 day
// default, a value of zero or less disables the TTL entirely, and anything
// unparseable falls back to the default.
func (pc *PrinterConfig) ThumbnailDiskTTL() time.Duration {
	raw := pc.GetString(keyThumbnailDiskTTLDays, CategoryAdvanced)
	if raw == "" {
		return defaultThumbnailDiskTTL
	}

	days, err := strconv.Atoi(raw)
	if err != nil {
		return defaultThumbnailDiskTTL
	}
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}
