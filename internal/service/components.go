// File: internal/service/components.go
package service

import (
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/internal/scan"
)

// Components holds the initialized services for a scan session. It
// centralizes lifecycle management of the scan dependencies.
type Components struct {
	Orchestrator *scan.Orchestrator
	Pipeline     *scan.Pipeline

	redisClient *redis.Client
	logger      *zap.Logger
}

// Shutdown releases held resources. Safe to call on a partially built
// Components value.
func (c *Components) Shutdown() {
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil && c.logger != nil {
			c.logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}
