package gdao

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// =====================================
// Configuration Loading
// =====================================

const (
	configFileName = "gdao"
	configFileType = "yaml"
	envPrefix      = "GDAO"
)

// LoadConfig reads a backend Config from a gdao.yaml file in the given
// directories (the working directory when none are given), with
// GDAO_-prefixed environment variables overriding file values
// (GDAO_DATABASE_HOST overrides database.host). A missing config file
// is not an error; the returned Config then carries defaults and
// environment overrides only.
func LoadConfig(paths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "1m")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, NewErrorWithCause(ErrorTypeConfiguration,
				fmt.Sprintf("read config %s.%s", configFileName, configFileType), err)
		}
	}

	cfg := Config{
		Driver:          v.GetString("database.driver"),
		ConnectionURL:   v.GetString("database.connection_url"),
		Host:            v.GetString("database.host"),
		Port:            v.GetInt("database.port"),
		Database:        v.GetString("database.name"),
		Username:        v.GetString("database.username"),
		Password:        v.GetString("database.password"),
		MaxOpenConns:    v.GetInt("database.max_open_conns"),
		MaxIdleConns:    v.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
		Options:         v.GetStringMap("database.options"),
		SSL: SSLConfig{
			Enabled:  v.GetBool("database.ssl.enabled"),
			Mode:     v.GetString("database.ssl.mode"),
			CertFile: v.GetString("database.ssl.cert_file"),
			KeyFile:  v.GetString("database.ssl.key_file"),
			CAFile:   v.GetString("database.ssl.ca_file"),
		},
	}
	if cfg.Driver == "" {
		return Config{}, NewError(ErrorTypeConfiguration, "database.driver is empty")
	}
	return cfg, nil
}
