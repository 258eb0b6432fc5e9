package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Warehouse struct {
		Path string `yaml:"path"`
	} `yaml:"warehouse"`

	Storage struct {
		Backend string `yaml:"backend"` // "local" or "s3"

		S3 struct {
			Bucket   string `yaml:"bucket"`
			Prefix   string `yaml:"prefix"`
			Region   string `yaml:"region"`
			Endpoint string `yaml:"endpoint"`
		} `yaml:"s3"`
	} `yaml:"storage"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Warehouse.Path == "" {
		cfg.Warehouse.Path = "."
	}

	return &cfg, nil
}
