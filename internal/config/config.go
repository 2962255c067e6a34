package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	License LicenseConfig `mapstructure:"license"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Client  ClientConfig  `mapstructure:"client"`
}

type DBConfig struct {
	Source string `mapstructure:"source"`
}

type LicenseConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	ReaperInterval   time.Duration `mapstructure:"reaper_interval"`
	MaxMessageBytes  int           `mapstructure:"max_message_bytes"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ClientConfig struct {
	ServerAddr        string        `mapstructure:"server_addr"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

func Load() (*Config, error) {
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/configs")
	viper.SetConfigName("settings")
	viper.SetConfigType("yml")

	viper.SetDefault("license.listen_addr", ":27000")
	viper.SetDefault("license.heartbeat_timeout", 120*time.Second)
	viper.SetDefault("license.reaper_interval", 30*time.Second)
	viper.SetDefault("license.max_message_bytes", 64*1024)
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("client.server_addr", "127.0.0.1:27000")
	viper.SetDefault("client.heartbeat_interval", 30*time.Second)
	viper.SetDefault("client.request_timeout", 10*time.Second)

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
