// Package config handles loading and validating the Glue Home bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GLUEHOME_* environment variables
//   - Validation of required fields
//   - Default value handling (30s poll interval, 1s operation poll delay, 30 attempts)
//
// Security Considerations:
//   - The Glue Home API key and password should be set via environment variables
//   - GlueHomeConfig.String() masks secrets; log that rather than the struct fields
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.GlueHome)
package config
