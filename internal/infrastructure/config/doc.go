// Package config handles loading and validating solarlog configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SOLARLOG_*)
//   - Filling instrument settings from the inverter or meter preset
//   - Validation of required fields
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Instrument.Port)
package config
