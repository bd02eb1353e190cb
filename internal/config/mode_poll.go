//go:build !sigdet

package config

const defaultReapMode = ReapModePoll
