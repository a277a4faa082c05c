package orders

import (
	"fmt"
	"strings"

	"cvalue-web/internal/transport"
)

// ServiceType is the product a visitor orders.
type ServiceType string

const (
	ServiceCV          ServiceType = "cv"
	ServiceLinkedIn    ServiceType = "linkedin"
	ServiceCoverLetter ServiceType = "cover-letter"
	ServiceBundle      ServiceType = "bundle"
)

// ParseServiceType maps a route parameter to a ServiceType. Anything
// unrecognised is treated as a CV order.
func ParseServiceType(raw string) ServiceType {
	switch ServiceType(strings.ToLower(strings.TrimSpace(raw))) {
	case ServiceLinkedIn:
		return ServiceLinkedIn
	case ServiceCoverLetter:
		return ServiceCoverLetter
	case ServiceBundle:
		return ServiceBundle
	default:
		return ServiceCV
	}
}

// Preview routes the client navigates to after a successful order.
const (
	RoutePreview            = "/preview"
	RouteCoverLetterPreview = "/cover-letter-preview"
)

// Route returns the preview route for the service.
func (s ServiceType) Route() string {
	if s == ServiceCoverLetter {
		return RouteCoverLetterPreview
	}
	return RoutePreview
}

// Request is a submitted order form.
type Request struct {
	ServiceType ServiceType
	Files       []transport.File
	Fields      transport.CoverLetterFields
}

// NavigationState is handed to the client to open the preview screen.
type NavigationState struct {
	Route       string                  `json:"route"`
	ServiceType ServiceType             `json:"serviceType"`
	Session     transport.UploadSession `json:"session"`
}

// FieldError describes one invalid form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors blocks submission until every entry is fixed.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, e := range fe {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return "invalid order: " + strings.Join(parts, "; ")
}
