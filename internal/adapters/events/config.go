package events

import (
	"strings"
	"time"
)

// Config holds Kafka consumer settings.
type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// Source is recorded on workflows registered from events.
	Source string
}

// withDefaults fills unset durations and names.
func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = "geoflow-workflows"
	}
	if c.GroupID == "" {
		c.GroupID = "geoflow"
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
	if c.RebalanceTimeout <= 0 {
		c.RebalanceTimeout = 30 * time.Second
	}
	if c.Source == "" {
		c.Source = "event"
	}
	return c
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
