// Package config loads the collector's runtime configuration from
// environment variables against a declared set of fields, in place of the
// teacher's HCL-based internal/config: this system has no embedded
// configuration language, so the field spec is a plain Go value instead of
// a parsed manifest.
package config
