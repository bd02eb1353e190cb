//go:build sigdet

package config

// Building with -tags sigdet makes SIGCHLD-driven reaping the default.
const defaultReapMode = ReapModeNotify
