package objectstore

import (
	"fmt"
	"strings"
)

// Config describes an S3-compatible bucket location.
type Config struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access key" toml:"access key"`
	SecretKey string `yaml:"secret key" toml:"secret key"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	Region    string `yaml:"region" toml:"region"`
	UseSSL    bool   `yaml:"use ssl" toml:"use ssl"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Validate checks the fields required to connect.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("object store endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("object store bucket is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("object store access key and secret key must be set together")
	}
	return nil
}

// Key joins the configured prefix and name into an object key.
func (c Config) Key(name string) string {
	p := strings.Trim(c.Prefix, "/")
	if p == "" {
		return name
	}
	return p + "/" + name
}
