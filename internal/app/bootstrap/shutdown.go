// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the workers, disconnects realtime clients and closes the
// MongoDB client.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if c := current(); c != nil {
		c.stop(logger)
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}

func (c *components) stop(logger *zap.Logger) {
	if c.sweeper != nil {
		c.sweeper.Stop()
	}
	if c.gateway != nil {
		if err := c.gateway.Close(); err != nil {
			logger.Warn("realtime gateway close failed", zap.Error(err))
		}
	}
	if c.apiLimiter != nil {
		c.apiLimiter.Close()
	}
	if c.loginLimiter != nil {
		c.loginLimiter.Close()
	}
}
