package config

import (
	"fmt"
	"strings"
	"time"
)

// DatabaseConfig points the ledger store at PostgreSQL. An empty URL is
// valid: the service falls back to the in-memory store.
type DatabaseConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

func (c *DatabaseConfig) Validate() error {
	if c.URL == "" {
		return nil
	}
	if !strings.HasPrefix(c.URL, "postgres://") && !strings.HasPrefix(c.URL, "postgresql://") {
		return fmt.Errorf("database URL must start with 'postgres://': %s", maskURL(c.URL))
	}
	return nil
}

// maskURL hides credentials when the URL ends up in logs or error messages.
func maskURL(url string) string {
	parts := strings.Split(url, "@")
	if len(parts) == 2 {
		return "****@" + parts[1]
	}
	return "****"
}
