// internal/app/features/groups/handler.go
package groups

import (
	"github.com/dalemusser/groupsnap/internal/app/services/grouplife"
	"go.uber.org/zap"
)

// Handler serves the group endpoints on top of the group lifecycle
// service.
type Handler struct {
	Groups *grouplife.Service
	Log    *zap.Logger
}

func NewHandler(svc *grouplife.Service, logger *zap.Logger) *Handler {
	return &Handler{Groups: svc, Log: logger}
}
