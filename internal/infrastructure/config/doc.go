// Package config handles loading and validating fieldsim configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with FIELDSIM_* environment variables
//   - Validation of required fields, reporting every problem at once
//   - Default value handling
//
// Credentials (MQTT password, InfluxDB token) should be supplied through
// the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
