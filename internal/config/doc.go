// Package config provides the configuration of placerank: search target,
// scroll termination thresholds, pacing ranges, freshness cycle, storage
// and queue settings. Values start from NewConfig, are overlaid by the
// YAML config file and finally by CLI flags.
package config
