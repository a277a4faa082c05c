package preview

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/payment"
	"cvalue-web/internal/render"
	"cvalue-web/internal/shared/server/middleware"
	"cvalue-web/internal/shared/server/respond"
	"cvalue-web/internal/shared/util"
	"cvalue-web/internal/transport"
)

// HomeRoute is where the client is sent when a preview has no session.
const HomeRoute = "/"

var attachmentBases = map[string]string{
	transport.ArtifactClassic:     "classic_resume",
	transport.ArtifactModern:      "modern_resume",
	transport.ArtifactCoverLetter: "cover-letter",
}

// Handler exposes preview views over HTTP.
type Handler struct {
	Registry *Registry
}

// NewHandler constructs a Handler.
func NewHandler(reg *Registry) *Handler {
	return &Handler{Registry: reg}
}

// DownloadPath is the paid download route of an artifact under basePath.
func DownloadPath(basePath string) func(viewID, artifact string) string {
	return func(viewID, artifact string) string {
		return basePath + "/previews/" + viewID + "/download/" + artifact
	}
}

// RegisterRoutes attaches preview routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/previews", h.create)
	rg.GET("/previews/:id", h.get)
	rg.POST("/previews/:id/select", h.selectArtifact)
	rg.POST("/previews/:id/retry", h.retry)
	rg.POST("/previews/:id/payments", h.pay)
	rg.DELETE("/previews/:id/payments", h.cancelPayment)
	rg.GET("/previews/:id/download/:artifact", h.download)
	rg.DELETE("/previews/:id", h.close)
}

type createRequest struct {
	ServiceType   string                  `json:"serviceType"`
	Session       transport.UploadSession `json:"session"`
	ViewportWidth int                     `json:"viewportWidth"`
}

type selectRequest struct {
	Artifact string `json:"artifact"`
}

type payRequest struct {
	Artifact string       `json:"artifact"`
	Form     payment.Form `json:"form"`
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	device := render.DetectDevice(c.GetHeader("User-Agent"), req.ViewportWidth)
	view, err := h.Registry.Create(middleware.VisitorIDFromContext(c), req.ServiceType, req.Session, device)
	if err != nil {
		if errors.Is(err, ErrSessionMissing) {
			redirectHome(c)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to open preview", nil)
		return
	}
	middleware.SetPreviewID(c, view.ID())

	// A failed load leaves the view in the failed state with a retry affordance.
	_ = view.Load(c.Request.Context())
	c.Header("Location", c.FullPath()+"/"+view.ID())
	respond.JSON(c, http.StatusCreated, view.Snapshot())
}

func (h *Handler) get(c *gin.Context) {
	view, ok := h.lookup(c)
	if !ok {
		return
	}
	respond.OK(c, view.Snapshot())
}

func (h *Handler) selectArtifact(c *gin.Context) {
	view, ok := h.lookup(c)
	if !ok {
		return
	}
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Artifact == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "artifact is required", nil)
		return
	}
	if _, err := view.Select(c.Request.Context(), req.Artifact); err != nil {
		switch {
		case errors.Is(err, ErrUnknownArtifact):
			respond.Error(c, http.StatusNotFound, "not_found", "artifact not found", nil)
			return
		case errors.Is(err, ErrNotReady):
			respond.Error(c, http.StatusConflict, "not_ready", "preview is still loading", nil)
			return
		case errors.Is(err, ErrStale):
			respond.Error(c, http.StatusConflict, "stale", "a newer selection is in progress", nil)
			return
		case errors.Is(err, ErrClosed):
			respond.Error(c, http.StatusGone, "closed", "preview is closed", nil)
			return
		}
	}
	respond.OK(c, view.Snapshot())
}

func (h *Handler) retry(c *gin.Context) {
	view, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := view.Retry(c.Request.Context()); errors.Is(err, ErrClosed) {
		respond.Error(c, http.StatusGone, "closed", "preview is closed", nil)
		return
	}
	respond.OK(c, view.Snapshot())
}

func (h *Handler) pay(c *gin.Context) {
	view, ok := h.lookup(c)
	if !ok {
		return
	}
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Artifact == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "artifact and form are required", nil)
		return
	}

	url, err := view.Pay(c.Request.Context(), req.Artifact, req.Form)
	if err != nil {
		var fieldErrs payment.FieldErrors
		switch {
		case errors.As(err, &fieldErrs):
			respond.Error(c, http.StatusUnprocessableEntity, "validation_error", fieldErrs[0].Message, fieldErrs)
		case errors.Is(err, ErrUnknownArtifact):
			respond.Error(c, http.StatusNotFound, "not_found", "artifact not found", nil)
		case errors.Is(err, ErrNotReady):
			respond.Error(c, http.StatusConflict, "not_ready", "preview is still loading", nil)
		case errors.Is(err, payment.ErrBusy):
			respond.Error(c, http.StatusConflict, "payment_in_progress", "payment is being processed", nil)
		case errors.Is(err, ErrClosed):
			respond.Error(c, http.StatusGone, "closed", "preview is closed", nil)
		case errors.Is(err, payment.ErrDeclined):
			respond.Error(c, http.StatusPaymentRequired, "payment_declined", payment.Message(err), gin.H{"payment": view.Snapshot().Payment})
		default:
			respond.Error(c, http.StatusPaymentRequired, "payment_failed", payment.Message(err), gin.H{"payment": view.Snapshot().Payment})
		}
		return
	}
	respond.OK(c, gin.H{
		"downloadUrl": url,
		"preview":     view.Snapshot(),
	})
}

func (h *Handler) cancelPayment(c *gin.Context) {
	view, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := view.CancelPayment(); err != nil {
		respond.Error(c, http.StatusConflict, "payment_in_progress", "payment is being processed", nil)
		return
	}
	respond.OK(c, view.Snapshot())
}

func (h *Handler) download(c *gin.Context) {
	view, ok := h.lookup(c)
	if !ok {
		return
	}
	artifact := c.Param("artifact")
	handle, rc, err := view.Download(c.Request.Context(), artifact)
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentRequired):
			respond.Error(c, http.StatusPaymentRequired, "payment_required", "Please complete payment to download", nil)
		case errors.Is(err, ErrUnknownArtifact):
			respond.Error(c, http.StatusNotFound, "not_found", "artifact not found", nil)
		case errors.Is(err, ErrNotReady):
			respond.Error(c, http.StatusConflict, "not_ready", "preview is still loading", nil)
		case errors.Is(err, ErrClosed):
			respond.Error(c, http.StatusGone, "closed", "preview is closed", nil)
		default:
			respond.Error(c, http.StatusNotFound, "not_found", "Document is no longer available", nil)
		}
		return
	}
	defer rc.Close()

	base, ok := attachmentBases[artifact]
	if !ok {
		base = artifact
	}
	c.Header("Content-Type", handle.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", util.AttachmentName(base)))
	c.Header("Cache-Control", "private, no-store")
	if handle.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(handle.Size, 10))
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

func (h *Handler) close(c *gin.Context) {
	id := c.Param("id")
	middleware.SetPreviewID(c, id)
	if err := h.Registry.Remove(c.Request.Context(), middleware.VisitorIDFromContext(c), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "preview not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to close preview", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) lookup(c *gin.Context) (*View, bool) {
	id := c.Param("id")
	middleware.SetPreviewID(c, id)
	view, err := h.Registry.Get(middleware.VisitorIDFromContext(c), id)
	if err != nil {
		respond.Error(c, http.StatusNotFound, "not_found", "preview not found", nil)
		return nil, false
	}
	return view, true
}

func redirectHome(c *gin.Context) {
	c.Header("Location", HomeRoute)
	respond.JSON(c, http.StatusSeeOther, gin.H{
		"error": respond.ErrorBody{
			Code:    "session_missing",
			Message: "No upload session found. Please upload your file again.",
		},
		"redirect": HomeRoute,
	})
}
