package preferences

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/shared/server/middleware"
	"cvalue-web/internal/shared/server/respond"
)

// Handler exposes preferences over HTTP.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches preference routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/preferences", h.get)
	rg.PUT("/preferences", h.put)
	rg.POST("/preferences/theme/toggle", h.toggle(h.Svc.ToggleTheme))
	rg.POST("/preferences/language/toggle", h.toggle(h.Svc.ToggleLanguage))
}

type preferencesResponse struct {
	Theme     Theme    `json:"theme"`
	Language  Language `json:"language"`
	Direction string   `json:"direction"`
}

func toResponse(p Preferences) preferencesResponse {
	return preferencesResponse{Theme: p.Theme, Language: p.Language, Direction: p.Language.Direction()}
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.Svc.Load(c.Request.Context(), middleware.VisitorIDFromContext(c))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load preferences", nil)
		return
	}
	respond.OK(c, toResponse(p))
}

func (h *Handler) put(c *gin.Context) {
	var req Update
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	p, err := h.Svc.Set(c.Request.Context(), middleware.VisitorIDFromContext(c), req)
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "theme must be light or dark and language must be ar or en", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save preferences", nil)
		return
	}
	respond.OK(c, toResponse(p))
}

func (h *Handler) toggle(fn func(context.Context, string) (Preferences, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := fn(c.Request.Context(), middleware.VisitorIDFromContext(c))
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save preferences", nil)
			return
		}
		respond.OK(c, toResponse(p))
	}
}
