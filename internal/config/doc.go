// Package config defines connection settings used by the console binaries
// and provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the feed server address, the agent identity and the
// backfill retry policy.
package config
