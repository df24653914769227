// Package config handles configuration loading, parsing, and validation
// from environment variables (JOBS_ prefix) and an optional YAML file. It
// provides type-safe access to the settings needed by the task engine, its
// storage backends and the plagiarism job while keeping configuration details
// separate from business logic.
package config
