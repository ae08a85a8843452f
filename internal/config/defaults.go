package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values. Every key needs a default so the environment can
// override it.
const (
	DefaultDataDir       = "~/.tickit"
	DefaultBaseURL       = "https://api.todoist.com/api/v1/"
	DefaultTimeout       = 30 * time.Second
	DefaultPageSize      = 200
	DefaultInterval      = time.Minute
	DefaultPassTimeout   = 2 * time.Minute
	DefaultDashboardPort = 7777
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("token", "")
	v.SetDefault("verbose", false)

	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", DefaultTimeout)
	v.SetDefault("api.page_size", DefaultPageSize)

	v.SetDefault("sync.interval", DefaultInterval)
	v.SetDefault("sync.pass_timeout", DefaultPassTimeout)

	v.SetDefault("dashboard.port", DefaultDashboardPort)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}
