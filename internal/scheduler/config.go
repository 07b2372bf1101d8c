// Package scheduler runs a window's fetch requests on a bounded worker pool.
package scheduler

// Config defines the pool configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent fetches across all connectors.
	GlobalMax int `yaml:"global_max"`
	// ByConnector defines per-connector concurrency limits.
	ByConnector map[string]int `yaml:"by_connector"`
}

// DefaultConfig returns the sequential configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax:   1,
		ByConnector: map[string]int{},
	}
}

// GetConnectorLimit returns the concurrency limit for a connector.
func (c *Config) GetConnectorLimit(connectorName string) int {
	if limit, ok := c.ByConnector[connectorName]; ok && limit > 0 {
		return limit
	}
	return c.GlobalMax
}
