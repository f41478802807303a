// Package objectstore wraps the S3 compatible bucket that receives run
// artifacts.
package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-experiment/internal/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("EXPERIMENT_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("EXPERIMENT_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: env.String("EXPERIMENT_MINIO_ACCESS_KEY", ""),
		SecretKey: env.String("EXPERIMENT_MINIO_SECRET_KEY", ""),
		Region:    env.String("EXPERIMENT_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("EXPERIMENT_MINIO_BUCKET", "experiment-runs"),
		Prefix:    env.String("EXPERIMENT_MINIO_PREFIX", "runs"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
