// Package config handles configuration loading for threadline.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${THREADLINE_DB_PATH}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string, which
// validation then catches for required fields.
//
// # Configuration Sections
//
// Database:
//
//	database:
//	  path: "threadline.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Poll input bounds:
//
//	polls:
//	  min_options: 2
//	  max_options: 10
//	  max_question_length: 500
//	  max_option_length: 100
//
// # Usage
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	limits := cfg.PollLimits()
package config
