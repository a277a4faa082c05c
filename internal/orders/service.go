package orders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"cvalue-web/internal/shared/metrics"
	"cvalue-web/internal/shared/telemetry"
	"cvalue-web/internal/transport"
)

const minJobDescriptionLength = 50

// Uploader is the part of the transport client used by orders.
type Uploader interface {
	Upload(ctx context.Context, f transport.File, progress transport.ProgressFunc) (transport.UploadSession, error)
	GenerateCoverLetter(ctx context.Context, f transport.File, fields transport.CoverLetterFields, progress transport.ProgressFunc) (transport.UploadSession, error)
}

// Service validates orders and submits them upstream.
type Service struct {
	uploader Uploader
	maxBytes int64
}

// NewService constructs a Service. maxBytes bounds each uploaded file.
func NewService(uploader Uploader, maxBytes int64) *Service {
	return &Service{uploader: uploader, maxBytes: maxBytes}
}

// Validate reports every problem with the request.
func (s *Service) Validate(req Request) FieldErrors {
	var errs FieldErrors
	add := func(field, msg string) { errs = append(errs, FieldError{Field: field, Message: msg}) }

	switch len(req.Files) {
	case 0:
		add("file", "Please select at least one file to upload.")
	case 1:
		if err := transport.ValidateFile(req.Files[0], s.maxBytes); err != nil {
			add("file", transport.UserMessage(err))
		}
	default:
		add("file", "Please upload a single PDF file.")
	}

	if req.ServiceType == ServiceCoverLetter {
		f := req.Fields
		for _, field := range []struct{ name, label, value string }{
			{"company", "Company", f.Company},
			{"location", "Location", f.Location},
			{"job_title", "Job title", f.JobTitle},
			{"job_description", "Job description", f.JobDescription},
		} {
			if strings.TrimSpace(field.value) == "" {
				add(field.name, field.label+" is required.")
			}
		}
		if desc := strings.TrimSpace(f.JobDescription); desc != "" && utf8.RuneCountInString(desc) < minJobDescriptionLength {
			add("job_description", "Job description must be at least 50 characters long.")
		}
	}
	return errs
}

// Submit validates the order, uploads it and returns where the client goes
// next. The upstream is never called for an invalid order.
func (s *Service) Submit(ctx context.Context, req Request, visitorID string) (NavigationState, error) {
	req.ServiceType = ParseServiceType(string(req.ServiceType))
	req.Fields = trimFields(req.Fields)
	if errs := s.Validate(req); len(errs) > 0 {
		return NavigationState{}, errs
	}

	metrics.IncUploadStarted()
	progress := milestoneLogger(req.ServiceType, visitorID)
	file := req.Files[0]

	var (
		session transport.UploadSession
		err     error
	)
	if req.ServiceType == ServiceCoverLetter {
		session, err = s.uploader.GenerateCoverLetter(ctx, file, req.Fields, progress)
	} else {
		session, err = s.uploader.Upload(ctx, file, progress)
	}
	if err != nil {
		metrics.IncUploadFailed()
		telemetry.Warn("orders.upload.failed", map[string]any{
			"service_type": string(req.ServiceType),
			"visitor_id":   visitorID,
			"kind":         string(transport.KindOf(err)),
			"err":          err,
		})
		return NavigationState{}, err
	}
	if strings.TrimSpace(session.SessionID) == "" {
		metrics.IncUploadFailed()
		return NavigationState{}, &transport.Error{Kind: transport.KindInvalidResponse, Op: "order", Err: errors.New("missing session id")}
	}

	metrics.IncUploadCompleted()
	telemetry.Info("orders.upload.completed", map[string]any{
		"service_type": string(req.ServiceType),
		"visitor_id":   visitorID,
		"session_id":   session.SessionID,
		"artifacts":    len(session.Artifacts),
	})
	return NavigationState{
		Route:       req.ServiceType.Route(),
		ServiceType: req.ServiceType,
		Session:     session,
	}, nil
}

func trimFields(f transport.CoverLetterFields) transport.CoverLetterFields {
	return transport.CoverLetterFields{
		Company:        strings.TrimSpace(f.Company),
		Location:       strings.TrimSpace(f.Location),
		JobTitle:       strings.TrimSpace(f.JobTitle),
		JobDescription: strings.TrimSpace(f.JobDescription),
	}
}

// milestoneLogger logs upload progress each time a new quarter is reached.
func milestoneLogger(serviceType ServiceType, visitorID string) transport.ProgressFunc {
	var (
		mu   sync.Mutex
		last int
	)
	return func(percent int) {
		mu.Lock()
		milestone := percent / 25 * 25
		if milestone <= last {
			mu.Unlock()
			return
		}
		last = milestone
		mu.Unlock()

		telemetry.Info("orders.upload.progress", map[string]any{
			"service_type": string(serviceType),
			"visitor_id":   visitorID,
			"percent":      milestone,
		})
	}
}
