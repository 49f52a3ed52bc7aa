package config

import (
	"runtime"

	"github.com/spf13/viper"
)

// PlatformDefaults returns platform-specific default values
type PlatformDefaults struct {
	LogFile    string
	ConfigPath string
}

// GetPlatformDefaults returns platform-specific defaults based on runtime.GOOS
func GetPlatformDefaults() PlatformDefaults {
	switch runtime.GOOS {
	case "windows":
		return PlatformDefaults{
			LogFile:    `C:\ProgramData\sysmetrics\sysmetrics.log`,
			ConfigPath: `C:\ProgramData\sysmetrics\config.yaml`,
		}
	case "freebsd":
		return PlatformDefaults{
			LogFile:    "/var/log/sysmetrics/sysmetrics.log",
			ConfigPath: "/usr/local/etc/sysmetrics/config.yaml",
		}
	case "darwin":
		return PlatformDefaults{
			LogFile:    "/usr/local/var/log/sysmetrics/sysmetrics.log",
			ConfigPath: "/usr/local/etc/sysmetrics/config.yaml",
		}
	default:
		// Linux and anything unknown
		return PlatformDefaults{
			LogFile:    "/var/log/sysmetrics/sysmetrics.log",
			ConfigPath: "/etc/sysmetrics/config.yaml",
		}
	}
}

// GetDefaultConfigPath returns the platform-specific default config path
func GetDefaultConfigPath() string {
	return GetPlatformDefaults().ConfigPath
}

// applyPlatformDefaults sets viper defaults that depend on the platform.
// Called from setDefaults
func applyPlatformDefaults(v *viper.Viper) {
	defaults := GetPlatformDefaults()
	v.SetDefault("logging.file", defaults.LogFile)
}
