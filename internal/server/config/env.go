package config

import "github.com/caarlos0/env/v11"

const EnvPrefix = "SHIFTSYNC_"

// parseEnv overlays SHIFTSYNC_* variables. Unset variables leave the
// current value alone.
func parseEnv(config *Config) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
