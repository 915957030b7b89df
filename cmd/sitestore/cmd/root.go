package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aweris/sitestore"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "sitestore",
	Short: "Site content storage CLI",
	Long:  "CLI for reading and writing site collections, managing assets and backups, and serving the cloud endpoints.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/sitestore/config.yaml)")
	flags.String("cache-dir", "", "cache directory (default: ~/.local/share/sitestore)")
	flags.String("cache-driver", sitestore.DriverBadger, "cache driver: badger, sqlite or memory")
	flags.Int64("cache-quota", 0, "local cache quota in bytes (0 = unlimited)")
	flags.String("kv-endpoint", "", "cloud KV endpoint URL")
	flags.String("file-endpoint", "", "cloud file endpoint URL")
	flags.String("token", "", "shared application token")
	flags.Duration("timeout", 0, "cloud read timeout (default 2s)")
	flags.String("backup-ref", "", "OCI image ref for published backups")
	flags.Bool("insecure-registry", false, "allow plain-HTTP registries")
	flags.String("log-level", "warn", "log level")

	viper.BindPFlag("cache_dir", flags.Lookup("cache-dir"))
	viper.BindPFlag("cache_driver", flags.Lookup("cache-driver"))
	viper.BindPFlag("cache_quota", flags.Lookup("cache-quota"))
	viper.BindPFlag("kv_endpoint", flags.Lookup("kv-endpoint"))
	viper.BindPFlag("file_endpoint", flags.Lookup("file-endpoint"))
	viper.BindPFlag("token", flags.Lookup("token"))
	viper.BindPFlag("timeout", flags.Lookup("timeout"))
	viper.BindPFlag("backup_ref", flags.Lookup("backup-ref"))
	viper.BindPFlag("insecure_registry", flags.Lookup("insecure-registry"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SITESTORE")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", sitestore.DefaultCacheDir())

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sitestore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "sitestore")
	}
	return ".sitestore"
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(viper.GetString("log_level")); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// openSite builds a Site from the merged flag, env and file configuration.
func openSite() (*sitestore.Site, error) {
	return sitestore.Open(
		sitestore.WithCacheDir(viper.GetString("cache_dir")),
		sitestore.WithCacheDriver(viper.GetString("cache_driver")),
		sitestore.WithCacheQuota(viper.GetInt64("cache_quota")),
		sitestore.WithCloud(viper.GetString("kv_endpoint"), viper.GetString("file_endpoint")),
		sitestore.WithToken(viper.GetString("token")),
		sitestore.WithTimeout(viper.GetDuration("timeout")),
		sitestore.WithBackupRemote(viper.GetString("backup_ref")),
		sitestore.WithInsecureRegistry(viper.GetBool("insecure_registry")),
		sitestore.WithLogger(newLogger()),
		sitestore.WithWarningHandler(func(msg string) {
			fmt.Fprintln(os.Stderr, "Warning:", msg)
		}),
	)
}

// withSite opens a site for the duration of fn and reports the first error.
func withSite(fn func(*sitestore.Site) error) (err error) {
	site, err := openSite()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := site.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(site)
}
