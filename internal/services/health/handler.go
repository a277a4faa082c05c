package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/shared/server/respond"
)

// Handler exposes health endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches health routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.status)
	rg.GET("/health/upstream", h.upstream)
}

func (h *Handler) status(c *gin.Context) {
	respond.OK(c, h.Svc.Status())
}

func (h *Handler) upstream(c *gin.Context) {
	st := h.Svc.CheckUpstream(c.Request.Context())
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	respond.JSON(c, code, st)
}
