package config

import (
	"fmt"
	"strings"
)

// minJWTSecretLength is the shortest HS256 secret accepted.
const minJWTSecretLength = 32

// problems collects validation failures so one pass reports all of them.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	var p problems

	p.check(c.Site.ID != "", "site.id is required")
	p.check(c.Database.Path != "", "database.path is required")
	p.check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	p.check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")
	if c.API.TLS.Enabled {
		p.check(c.API.TLS.CertFile != "" && c.API.TLS.KeyFile != "", "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}

	// The API drives the keyboard and mouse of this machine.
	if jwt := c.Security.JWT; jwt.Enabled {
		if jwt.Secret == "" {
			p.check(false, "security.jwt.secret is required (set GRAYMACRO_JWT_SECRET)")
		} else {
			p.check(len(jwt.Secret) >= minJWTSecretLength, "security.jwt.secret must be at least %d characters", minJWTSecretLength)
		}
	}

	e := c.Engine
	p.check(e.MaxRunTime >= 1, "engine.max_run_time must be positive")
	p.check(e.MaxLoopCount >= 1, "engine.max_loop_count must be positive")
	p.check(e.MaxItems >= 1, "engine.max_items must be positive")
	p.check(e.DefaultThreshold > 0 && e.DefaultThreshold <= 1, "engine.default_threshold must be in (0, 1]")

	if b := c.Bridges; b.Enabled {
		p.check(b.Input != "" && b.Vision != "", "bridges.input and bridges.vision are required when bridges are enabled")
		p.check(b.RequestTimeout >= 1, "bridges.request_timeout must be positive")
	}

	if c.InfluxDB.Enabled {
		p.check(c.InfluxDB.URL != "" && c.InfluxDB.Org != "" && c.InfluxDB.Bucket != "", "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	if len(p) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(p, "; "))
	}
	return nil
}
