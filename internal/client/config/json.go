package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/timex"
)

// JsonConfig is the on-disk form of Config. Absent fields keep their
// current value, so booleans are pointers.
type JsonConfig struct {
	DBPath             string `json:"db_path"`
	Remote             string `json:"remote"`
	ServerEndpointAddr string `json:"server_endpoint_addr"`
	AccessToken        string `json:"access_token"`

	S3Bucket          string `json:"s3_bucket"`
	S3Region          string `json:"s3_region"`
	S3Endpoint        string `json:"s3_endpoint"`
	S3AccessKeyID     string `json:"s3_access_key_id"`
	S3SecretAccessKey string `json:"s3_secret_access_key"`
	S3Prefix          string `json:"s3_prefix"`
	S3UsePathStyle    *bool  `json:"s3_path_style"`

	StatusAddr string `json:"status_addr"`

	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	SyncMinGap          timex.Duration `json:"sync_min_gap"`
	BatchSize           int            `json:"batch_size"`
	BatchPause          timex.Duration `json:"batch_pause"`
	MaxRetries          int            `json:"max_retries"`
	AutoSync            *bool          `json:"auto_sync"`
	IntegritySchedule   string         `json:"integrity_schedule"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	setString(&cfg.DBPath, jc.DBPath)
	setString(&cfg.Remote, jc.Remote)
	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.AccessToken, jc.AccessToken)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3AccessKeyID, jc.S3AccessKeyID)
	setString(&cfg.S3SecretAccessKey, jc.S3SecretAccessKey)
	setString(&cfg.S3Prefix, jc.S3Prefix)
	setString(&cfg.StatusAddr, jc.StatusAddr)
	setString(&cfg.IntegritySchedule, jc.IntegritySchedule)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)

	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.SyncInterval, jc.SyncInterval)
	setDuration(&cfg.SyncMinGap, jc.SyncMinGap)
	setDuration(&cfg.BatchPause, jc.BatchPause)

	if jc.BatchSize > 0 {
		cfg.BatchSize = jc.BatchSize
	}
	if jc.MaxRetries > 0 {
		cfg.MaxRetries = jc.MaxRetries
	}
	if jc.AutoSync != nil {
		cfg.AutoSync = *jc.AutoSync
	}
	if jc.S3UsePathStyle != nil {
		cfg.S3UsePathStyle = *jc.S3UsePathStyle
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
