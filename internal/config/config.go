// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"
)

type SMTP struct {
	Host     string   `env:"SMTP_HOST"`
	Port     string   `env:"SMTP_PORT" envDefault:"587"`
	User     string   `env:"SMTP_USER"`
	Password string   `env:"SMTP_PASSWORD"`
	From     string   `env:"MAIL_FROM"`
	To       []string `env:"MAIL_TO" envSeparator:","`
}

// Enabled reports whether every setting needed to send alerts is present.
func (s SMTP) Enabled() bool {
	return s.Host != "" && s.Port != "" && s.User != "" && s.Password != "" && s.From != "" && len(s.To) > 0
}

type Kafka struct {
	BootstrapServers   string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	NotificationsTopic string `env:"KAFKA_NOTIFICATIONS_TOPIC" envDefault:"store_notifications"`
	UpdatesTopic       string `env:"KAFKA_UPDATES_TOPIC" envDefault:"purchase_updates"`
	GroupID            string `env:"KAFKA_GROUP_ID" envDefault:"iap_bridge_group"`
}

func (k Kafka) Enabled() bool {
	return k.BootstrapServers != ""
}

type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	EventName   string `env:"IAP_EVENT_NAME" envDefault:"purchaseUpdated"`
	WindowLabel string `env:"IAP_WINDOW_LABEL" envDefault:"main"`
	PackageName string `env:"IAP_PACKAGE_NAME"`
	DatabaseURL string `env:"DATABASE_URL"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	Kafka Kafka
	SMTP  SMTP
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Values copied from compose files often keep their quotes.
	cfg.Kafka.BootstrapServers = strings.Trim(cfg.Kafka.BootstrapServers, "\"")
	return &cfg, nil
}

func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// MigrationURL points golang-migrate at a dedicated migrations table.
func (c *Config) MigrationURL() string {
	if strings.Contains(c.DatabaseURL, "?") {
		return c.DatabaseURL + "&x-migrations-table=iap_schema_migrations"
	}
	return c.DatabaseURL + "?x-migrations-table=iap_schema_migrations"
}
