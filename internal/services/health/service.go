package health

import (
	"context"
	"time"

	"cvalue-web/internal/transport"
)

// Checker probes an upstream dependency.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Service encapsulates health-related checks.
type Service struct {
	Upstream Checker
	Now      func() time.Time
}

// NewService constructs a new health service.
func NewService(upstream Checker) *Service {
	return &Service{Upstream: upstream, Now: time.Now}
}

// Status returns a simple health payload.
func (s *Service) Status() map[string]bool {
	return map[string]bool{"ok": true}
}

// UpstreamStatus is the result of probing the document API.
type UpstreamStatus struct {
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CheckUpstream probes the document API once.
func (s *Service) CheckUpstream(ctx context.Context) UpstreamStatus {
	if s.Upstream == nil {
		return UpstreamStatus{OK: false, Message: "upstream not configured"}
	}
	start := s.Now()
	err := s.Upstream.HealthCheck(ctx)
	st := UpstreamStatus{OK: err == nil, LatencyMs: s.Now().Sub(start).Milliseconds()}
	if err != nil {
		st.Kind = string(transport.KindOf(err))
		st.Message = transport.UserMessage(err)
	}
	return st
}
