package config

import (
	"github.com/spf13/pflag"
)

// Flags binds the client flags to a FlagSet. Only flags the user actually
// set override the file and environment.
type Flags struct {
	fs         *pflag.FlagSet
	configPath string
	v          Config
}

// NewFlags registers every client flag on fs, usually a cobra command's
// persistent flag set.
func NewFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	def := Config{}
	def.LoadDefaults()
	v := &f.v

	fs.StringVarP(&f.configPath, "config", "c", "", "path to JSON config file")
	fs.StringVar(&v.DBPath, "db", def.DBPath, "local SQLite database path")
	fs.StringVar(&v.Remote, "remote", def.Remote, `remote store: "grpc", "s3" or empty for local-only`)
	fs.StringVarP(&v.ServerEndpointAddr, "server", "a", def.ServerEndpointAddr, "gRPC remote store address")
	fs.StringVar(&v.AccessToken, "token", def.AccessToken, "remote store access token")

	fs.StringVar(&v.S3Bucket, "s3-bucket", def.S3Bucket, "S3 bucket")
	fs.StringVar(&v.S3Region, "s3-region", def.S3Region, "S3 region")
	fs.StringVar(&v.S3Endpoint, "s3-endpoint", def.S3Endpoint, "S3 endpoint for MinIO and other compatible stores")
	fs.StringVar(&v.S3AccessKeyID, "s3-access-key", def.S3AccessKeyID, "S3 access key id")
	fs.StringVar(&v.S3SecretAccessKey, "s3-secret-key", def.S3SecretAccessKey, "S3 secret access key")
	fs.StringVar(&v.S3Prefix, "s3-prefix", def.S3Prefix, "S3 key prefix")
	fs.BoolVar(&v.S3UsePathStyle, "s3-path-style", def.S3UsePathStyle, "use path-style S3 addressing")

	fs.StringVar(&v.StatusAddr, "status-addr", def.StatusAddr, "daemon status API address")

	fs.DurationVarP(&v.OnlineCheckInterval, "online-check-interval", "i", def.OnlineCheckInterval, "reachability check interval")
	fs.DurationVar(&v.SyncInterval, "sync-interval", def.SyncInterval, "periodic sync check interval")
	fs.DurationVar(&v.SyncMinGap, "sync-min-gap", def.SyncMinGap, "minimum time between periodic sync attempts")
	fs.IntVar(&v.BatchSize, "batch-size", def.BatchSize, "operations sent concurrently per batch")
	fs.DurationVar(&v.BatchPause, "batch-pause", def.BatchPause, "pause between batches")
	fs.IntVar(&v.MaxRetries, "max-retries", def.MaxRetries, "attempts before an operation is dropped")
	fs.BoolVar(&v.AutoSync, "auto-sync", def.AutoSync, "sync pending operations periodically")
	fs.StringVar(&v.IntegritySchedule, "integrity-schedule", def.IntegritySchedule, "cron spec of the integrity check")

	fs.StringVar(&v.LogLevel, "log-level", def.LogLevel, "debug, info, warn or error")
	fs.StringVar(&v.LogFormat, "log-format", def.LogFormat, "json or text")
	return f
}

// Load builds the Config: defaults, JSON file, environment, then changed
// flags. The result is validated.
func (f *Flags) Load() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, f.configPath); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	f.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *Flags) apply(dst *Config) {
	src := &f.v
	set := map[string]func(){
		"db":                    func() { dst.DBPath = src.DBPath },
		"remote":                func() { dst.Remote = src.Remote },
		"server":                func() { dst.ServerEndpointAddr = src.ServerEndpointAddr },
		"token":                 func() { dst.AccessToken = src.AccessToken },
		"s3-bucket":             func() { dst.S3Bucket = src.S3Bucket },
		"s3-region":             func() { dst.S3Region = src.S3Region },
		"s3-endpoint":           func() { dst.S3Endpoint = src.S3Endpoint },
		"s3-access-key":         func() { dst.S3AccessKeyID = src.S3AccessKeyID },
		"s3-secret-key":         func() { dst.S3SecretAccessKey = src.S3SecretAccessKey },
		"s3-prefix":             func() { dst.S3Prefix = src.S3Prefix },
		"s3-path-style":         func() { dst.S3UsePathStyle = src.S3UsePathStyle },
		"status-addr":           func() { dst.StatusAddr = src.StatusAddr },
		"online-check-interval": func() { dst.OnlineCheckInterval = src.OnlineCheckInterval },
		"sync-interval":         func() { dst.SyncInterval = src.SyncInterval },
		"sync-min-gap":          func() { dst.SyncMinGap = src.SyncMinGap },
		"batch-size":            func() { dst.BatchSize = src.BatchSize },
		"batch-pause":           func() { dst.BatchPause = src.BatchPause },
		"max-retries":           func() { dst.MaxRetries = src.MaxRetries },
		"auto-sync":             func() { dst.AutoSync = src.AutoSync },
		"integrity-schedule":    func() { dst.IntegritySchedule = src.IntegritySchedule },
		"log-level":             func() { dst.LogLevel = src.LogLevel },
		"log-format":            func() { dst.LogFormat = src.LogFormat },
	}
	// Changed lives on the shared *Flag, so this also sees persistent
	// flags that cobra parsed through a subcommand's flag set.
	f.fs.VisitAll(func(fl *pflag.Flag) {
		if !fl.Changed {
			return
		}
		if fn, ok := set[fl.Name]; ok {
			fn()
		}
	})
}
