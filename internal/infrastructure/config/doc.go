// Package config loads configs/config.yaml.
//
// Load layers the file over built-in defaults, applies GRAYMACRO_*
// environment overrides and validates, reporting every problem in one
// error. Unknown YAML keys are errors.
//
// Keep secrets (security.jwt.secret, mqtt.auth.password, influxdb.token)
// in the environment rather than the file. The API drives input on this
// machine, so leave security.jwt.enabled on unless the API listens on
// loopback only.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//		return err
//	}
//	runner.SetMaxRunTime(cfg.Engine.MaxRunTimeDuration())
package config
