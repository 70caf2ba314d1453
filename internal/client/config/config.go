// Package config loads runtime configuration for the shiftsync client.
//
// Sources, in increasing precedence:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file named by -c/--config.
//  3. SHIFTSYNC_* environment variables.
//  4. Command-line flags that were explicitly set.
//
// Durations in JSON accept "3s" or integer nanoseconds:
//
//	{
//	  "db_path": "shiftsync.db",
//	  "remote": "grpc",
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "sync_interval": "10s"
//	}
package config

import (
	"fmt"
	"time"
)

const (
	RemoteNone = ""
	RemoteGRPC = "grpc"
	RemoteS3   = "s3"
)

// Config holds runtime settings for the client daemon and its CLI.
type Config struct {
	DBPath string `env:"DB_PATH"`
	// Remote selects the backend: "grpc", "s3" or empty for local-only.
	Remote             string `env:"REMOTE"`
	ServerEndpointAddr string `env:"SERVER_ADDR"`
	AccessToken        string `env:"ACCESS_TOKEN"`

	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3Prefix          string `env:"S3_PREFIX"`
	S3UsePathStyle    bool   `env:"S3_PATH_STYLE"`

	// StatusAddr is where the daemon serves the status surface and where
	// the CLI commands reach it.
	StatusAddr string `env:"STATUS_ADDR"`

	OnlineCheckInterval time.Duration `env:"ONLINE_CHECK_INTERVAL"`
	SyncInterval        time.Duration `env:"SYNC_INTERVAL"`
	SyncMinGap          time.Duration `env:"SYNC_MIN_GAP"`
	BatchSize           int           `env:"BATCH_SIZE"`
	BatchPause          time.Duration `env:"BATCH_PAUSE"`
	MaxRetries          int           `env:"MAX_RETRIES"`
	AutoSync            bool          `env:"AUTO_SYNC"`
	IntegritySchedule   string        `env:"INTEGRITY_SCHEDULE"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// LoadDefaults populates c with local-only development defaults.
func (c *Config) LoadDefaults() {
	c.DBPath = "shiftsync.db"
	c.Remote = RemoteNone
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.S3Region = "us-east-1"
	c.StatusAddr = "127.0.0.1:8765"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 10 * time.Second
	c.SyncMinGap = 5 * time.Second
	c.BatchSize = 5
	c.BatchPause = 100 * time.Millisecond
	c.MaxRetries = 5
	c.AutoSync = true
	c.IntegritySchedule = "@every 5m"
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// Validate rejects combinations the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Remote {
	case RemoteNone:
	case RemoteGRPC:
		if c.ServerEndpointAddr == "" {
			return fmt.Errorf("remote %q needs a server address", c.Remote)
		}
	case RemoteS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("remote %q needs a bucket", c.Remote)
		}
	default:
		return fmt.Errorf("unknown remote %q", c.Remote)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
