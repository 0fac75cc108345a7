package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath is used when no -config flag is given.
const DefaultPath = "config.yml"

// APP_ENV values. Anything else is used verbatim.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var envAliases = map[string]string{
	"dev":         EnvDevelopment,
	"prod":        EnvProduction,
	"producation": EnvProduction,
	"stag":        EnvStaging,
	"stagging":    EnvStaging,
}

func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		return EnvDevelopment
	}
	if canonical, ok := envAliases[env]; ok {
		return canonical
	}
	return env
}

// AppEnvironment is the normalised APP_ENV, development when unset.
func AppEnvironment() string {
	return getAppEnvironment()
}

// IsProductionLike is true for production and staging.
func IsProductionLike(env string) bool {
	return env == EnvProduction || env == EnvStaging
}

// ResolvePath swaps the default config.yml for config.<env>.yml when that
// file exists. Explicit paths are returned unchanged.
func ResolvePath(path string) string {
	if path != "" && path != DefaultPath {
		return path
	}
	ext := filepath.Ext(DefaultPath)
	candidate := strings.TrimSuffix(DefaultPath, ext) + "." + getAppEnvironment() + ext
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return DefaultPath
}
