// internal/app/features/images/handler.go
package images

import (
	"github.com/dalemusser/groupsnap/internal/app/services/imagepipe"
	"go.uber.org/zap"
)

// Handler serves the image endpoints of a group.
type Handler struct {
	Images *imagepipe.Service
	Log    *zap.Logger
}

func NewHandler(svc *imagepipe.Service, logger *zap.Logger) *Handler {
	return &Handler{Images: svc, Log: logger}
}
