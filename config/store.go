package config

import (
	"errors"
	"fmt"
	"strings"
)

// StoreBackend selects where the configuration document lives.
type StoreBackend string

const (
	// StoreBackendFile keeps documents under a local directory.
	StoreBackendFile StoreBackend = "file"
	// StoreBackendS3 keeps documents in an S3-compatible bucket.
	StoreBackendS3 StoreBackend = "s3"
	// StoreBackendS3WithFile reads the bucket first and falls back to the local directory.
	StoreBackendS3WithFile StoreBackend = "s3+file"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreBackend.
func (b *StoreBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "file", "s3", "s3+file":
		*b = StoreBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid StoreBackend: %q (valid options: file, s3, s3+file)", v)
	}
}

// UsesS3 reports whether the backend needs bucket settings.
func (b StoreBackend) UsesS3() bool {
	return b == StoreBackendS3 || b == StoreBackendS3WithFile
}

// UsesFile reports whether the backend needs a local root.
func (b StoreBackend) UsesFile() bool {
	return b == StoreBackendFile || b == StoreBackendS3WithFile
}

// S3Config contains bucket connection settings.
type S3Config struct {
	// Endpoint is a custom endpoint, e.g. https://<account>.r2.cloudflarestorage.com.
	Endpoint        string `env:"ENDPOINT"`
	Bucket          string `env:"BUCKET"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Region          string `env:"REGION"            envDefault:"auto"`
}

// StoreConfig groups document storage configuration.
type StoreConfig struct {
	Backend  StoreBackend `env:"STORE_BACKEND"    envDefault:"file"`
	FileRoot string       `env:"STORE_FILE_ROOT"  envDefault:"."`
	// ConfigKey is the document holding the catalog and the allow-list.
	ConfigKey string `env:"STORE_CONFIG_KEY" envDefault:"data/app-config.json"`

	S3 S3Config `envPrefix:"S3_"`
}

// Validate reports missing storage settings.
func (s *StoreConfig) Validate() error {
	var errs []error
	if s.Backend.UsesS3() && strings.TrimSpace(s.S3.Bucket) == "" {
		errs = append(errs, errors.New("S3_BUCKET is required for the s3 store backends"))
	}
	if s.Backend.UsesFile() && strings.TrimSpace(s.FileRoot) == "" {
		errs = append(errs, errors.New("STORE_FILE_ROOT is required for the file store backends"))
	}
	if strings.TrimSpace(s.ConfigKey) == "" {
		errs = append(errs, errors.New("STORE_CONFIG_KEY must not be empty"))
	}
	return errors.Join(errs...)
}
