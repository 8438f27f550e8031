package config

import (
	"os"
	"strconv"
)

// envOverride maps one GRAYMACRO_* variable onto a config field. set
// receives the raw non-empty value; unparsable values are ignored and the
// field keeps its file or default value.
type envOverride struct {
	name string
	set  func(cfg *Config, v string)
}

var envOverrides = []envOverride{
	{"GRAYMACRO_SITE_ID", func(c *Config, v string) { c.Site.ID = v }},
	{"GRAYMACRO_DATABASE_PATH", func(c *Config, v string) { c.Database.Path = v }},

	{"GRAYMACRO_MQTT_HOST", func(c *Config, v string) { c.MQTT.Broker.Host = v }},
	{"GRAYMACRO_MQTT_PORT", intField(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"GRAYMACRO_MQTT_USERNAME", func(c *Config, v string) { c.MQTT.Auth.Username = v }},
	{"GRAYMACRO_MQTT_PASSWORD", func(c *Config, v string) { c.MQTT.Auth.Password = v }},

	{"GRAYMACRO_API_HOST", func(c *Config, v string) { c.API.Host = v }},
	{"GRAYMACRO_API_PORT", intField(func(c *Config) *int { return &c.API.Port })},

	{"GRAYMACRO_INFLUXDB_ENABLED", boolField(func(c *Config) *bool { return &c.InfluxDB.Enabled })},
	{"GRAYMACRO_INFLUXDB_URL", func(c *Config, v string) { c.InfluxDB.URL = v }},
	{"GRAYMACRO_INFLUXDB_TOKEN", func(c *Config, v string) { c.InfluxDB.Token = v }},

	{"GRAYMACRO_LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = v }},
	{"GRAYMACRO_LOG_FORMAT", func(c *Config, v string) { c.Logging.Format = v }},

	// Always set the secret from the environment in production.
	{"GRAYMACRO_JWT_SECRET", func(c *Config, v string) { c.Security.JWT.Secret = v }},
	{"GRAYMACRO_JWT_ENABLED", boolField(func(c *Config) *bool { return &c.Security.JWT.Enabled })},

	{"GRAYMACRO_ENGINE_ALLOW_COMMANDS", boolField(func(c *Config) *bool { return &c.Engine.AllowCommands })},
	{"GRAYMACRO_BRIDGES_ENABLED", boolField(func(c *Config) *bool { return &c.Bridges.Enabled })},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.set(cfg, v)
		}
	}
}

func intField(field func(*Config) *int) func(*Config, string) {
	return func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*field(c) = n
		}
	}
}

func boolField(field func(*Config) *bool) func(*Config, string) {
	return func(c *Config, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			*field(c) = b
		}
	}
}
