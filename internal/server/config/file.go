package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophsync/internal/flagx"
	"github.com/dmitrijs2005/gophsync/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Every field is
// optional: only keys present in the file override the current values.
type FileConfig struct {
	EndpointAddrGRPC            *string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	EndpointAddrWS              *string         `json:"endpoint_addr_ws" yaml:"endpoint_addr_ws"`
	DatabaseDSN                 *string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                   *string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	EncryptionPassphrase        *string         `json:"encryption_passphrase" yaml:"encryption_passphrase"`
	EncryptionSalt              *string         `json:"encryption_salt" yaml:"encryption_salt"`
	DefaultStorageLimit         *int64          `json:"default_storage_limit" yaml:"default_storage_limit"`
	MaxBatchSize                *int            `json:"max_batch_size" yaml:"max_batch_size"`
	LogLevel                    *string         `json:"log_level" yaml:"log_level"`
	LogFile                     *string         `json:"log_file" yaml:"log_file"`
	S3RootUser                  *string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                    *string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
}

// parseFile overlays values from the file named by -c/-config in args.
// Files ending in .yaml or .yml are decoded as YAML, everything else as
// JSON. An unreadable or malformed file panics: the server must not start
// with a half-applied configuration.
func parseFile(config *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(config)
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.EndpointAddrWS, fc.EndpointAddrWS)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.SecretKey, fc.SecretKey)
	if fc.AccessTokenValidityDuration != nil {
		c.AccessTokenValidityDuration = fc.AccessTokenValidityDuration.Duration
	}
	setString(&c.EncryptionPassphrase, fc.EncryptionPassphrase)
	setString(&c.EncryptionSalt, fc.EncryptionSalt)
	if fc.DefaultStorageLimit != nil {
		c.DefaultStorageLimit = *fc.DefaultStorageLimit
	}
	if fc.MaxBatchSize != nil {
		c.MaxBatchSize = *fc.MaxBatchSize
	}
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFile, fc.LogFile)
	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
