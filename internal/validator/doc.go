// Package validator provides struct validation for configuration and pipeline definitions.
//
// This package wraps go-playground/validator to provide:
//   - Human-readable error messages with dotted field paths
//   - A "failurepolicy" tag for worker failure policies
//
// # Usage
//
//	if err := validator.Validate(cfg); err != nil {
//	    // err is a validator.ValidationErrors
//	}
package validator
