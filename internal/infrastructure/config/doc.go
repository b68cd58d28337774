// Package config handles loading and validating valvectl configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// A config file is optional: the CLI runs on a bare Raspberry Pi with the
// built-in defaults (rpio driver, active-low relay board, 10 minute default
// duration).
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The HTTP service requires a JWT secret because it drives physical valves
//
// Usage:
//
//	cfg, err := config.Load("/etc/valvectl/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GPIO.Driver)
package config
