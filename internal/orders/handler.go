package orders

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/shared/server/middleware"
	"cvalue-web/internal/shared/server/respond"
	"cvalue-web/internal/transport"
)

// multipartOverhead leaves room for form fields around the file part.
const multipartOverhead = 1 << 20

// Handler exposes the order form over HTTP.
type Handler struct {
	Svc      *Service
	MaxBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxBytes int64) *Handler {
	return &Handler{Svc: svc, MaxBytes: maxBytes}
}

// RegisterRoutes attaches order routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/orders/:serviceType", h.submit)
}

func (h *Handler) submit(c *gin.Context) {
	if h.MaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBytes+multipartOverhead)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "file is too large", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid multipart body", nil)
		return
	}
	defer func() { _ = form.RemoveAll() }()

	headers := append(form.File["file"], form.File["files"]...)
	files := make([]transport.File, 0, len(headers))
	defer func() {
		for _, f := range files {
			_ = f.Body.(io.Closer).Close()
		}
	}()
	for _, fh := range headers {
		f, err := openPart(fh)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "could not read uploaded file", nil)
			return
		}
		files = append(files, f)
	}

	req := Request{
		ServiceType: ParseServiceType(c.Param("serviceType")),
		Files:       files,
		Fields: transport.CoverLetterFields{
			Company:        formValue(form, "company"),
			Location:       formValue(form, "location"),
			JobTitle:       formValue(form, "job_title"),
			JobDescription: formValue(form, "job_description"),
		},
	}

	nav, err := h.Svc.Submit(c.Request.Context(), req, middleware.VisitorIDFromContext(c))
	if err != nil {
		var fieldErrs FieldErrors
		if errors.As(err, &fieldErrs) {
			respond.Error(c, http.StatusUnprocessableEntity, "validation_error", fieldErrs[0].Message, fieldErrs)
			return
		}
		respond.Error(c, transport.HTTPStatus(err), "upload_failed", transport.UserMessage(err), gin.H{
			"kind": string(transport.KindOf(err)),
		})
		return
	}
	respond.JSON(c, http.StatusCreated, nav)
}

func openPart(fh *multipart.FileHeader) (transport.File, error) {
	f, err := fh.Open()
	if err != nil {
		return transport.File{}, err
	}
	return transport.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, nil
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
