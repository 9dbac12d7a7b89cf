// Package config provides centralized configuration management for the
// TxRelay daemon. It loads a JSON configuration file, applies defaults for
// missing fields, and exposes typed sections for the API server, submission
// storage, queue drivers, chain endpoints, wallet, logging, and alerting.
package config
