package blobs

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/shared/server/middleware"
	"cvalue-web/internal/shared/server/respond"
)

// Handler serves live blob handles.
type Handler struct {
	Manager *Manager
}

// NewHandler constructs a Handler.
func NewHandler(m *Manager) *Handler {
	return &Handler{Manager: m}
}

// RegisterRoutes attaches blob routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/blobs/:id", h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	handle, rc, err := h.Manager.Open(c.Request.Context(), middleware.VisitorIDFromContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotLive) {
			respond.Error(c, http.StatusNotFound, "not_found", "Document is no longer available", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "Failed to open document", nil)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", handle.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", handle.Filename))
	c.Header("Cache-Control", "private, no-store")
	if handle.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(handle.Size, 10))
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
