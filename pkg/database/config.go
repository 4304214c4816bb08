package database

import "time"

type Config struct {
	Hosts       []string
	Keyspace    string
	Timeout     time.Duration
	ConnectWait time.Duration
	Retries     int
}

func DefaultConfig() *Config {
	return &Config{
		Hosts:       []string{"localhost:9042"},
		Keyspace:    "taskmesh",
		Timeout:     5 * time.Second,
		ConnectWait: 10 * time.Second,
		Retries:     3,
	}
}
