// Package audit records one immutable event per authorization decision.
// The recorder is purely observational: a failing sink never changes the
// outcome of the request that produced the event.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"civium.org/internal/auth"
	"civium.org/internal/ids"
	"civium.org/internal/obs"
)

// Decision is the outcome of one guard evaluation.
type Decision string

const (
	DecisionAllowed Decision = "ALLOWED"
	DecisionDenied  Decision = "DENIED"
)

// Event is an append-only record of one allow/deny decision.
type Event struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id,omitempty"`
	ActorEmail string            `json:"actor_email,omitempty"`
	ActorRole  string            `json:"actor_role,omitempty"`
	Required   string            `json:"required,omitempty"`
	Decision   Decision          `json:"decision"`
	Reason     string            `json:"reason"`
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sink persists events. Implementations must treat them as append-only.
type Sink interface {
	Append(ctx context.Context, event *Event) error
}

// Recorder normalizes decisions into events and hands them to a sink.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the recorder's time source.
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder builds a Recorder over sink. A nil sink falls back to the
// JSON log sink so decisions are never silently unrecorded.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	if sink == nil {
		sink = LogSink{}
	}
	r := &Recorder{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record normalizes and appends one event. Sink failures are counted and
// logged, never propagated: audit must not turn an allow into a deny.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["request_id"] = rid
	}
	if err := r.sink.Append(ctx, &event); err != nil {
		obs.RecordAuditSinkError()
		obs.Error("audit append failed", map[string]any{
			"event_id": event.ID,
			"reason":   event.Reason,
			"error":    err.Error(),
		})
	}
}

// RoleCheck records the outcome of a role-based guard evaluation.
func (r *Recorder) RoleCheck(ctx context.Context, p auth.Principal, required []auth.Role, decision Decision, reason, endpoint, method string) {
	names := make([]string, 0, len(required))
	for _, role := range required {
		names = append(names, string(role))
	}
	r.Record(ctx, Event{
		ActorID:    p.ID,
		ActorEmail: p.Email,
		ActorRole:  string(p.Role),
		Required:   "role:" + strings.Join(names, "|"),
		Decision:   decision,
		Reason:     reason,
		Endpoint:   endpoint,
		Method:     method,
	})
}

// PermissionCheck records the outcome of a permission-based guard
// evaluation.
func (r *Recorder) PermissionCheck(ctx context.Context, p auth.Principal, required []auth.Permission, decision Decision, reason, endpoint, method string) {
	names := make([]string, 0, len(required))
	for _, perm := range required {
		names = append(names, string(perm))
	}
	r.Record(ctx, Event{
		ActorID:    p.ID,
		ActorEmail: p.Email,
		ActorRole:  string(p.Role),
		Required:   "permission:" + strings.Join(names, "|"),
		Decision:   decision,
		Reason:     reason,
		Endpoint:   endpoint,
		Method:     method,
	})
}

// LogSink writes events as JSON lines through the shared logger.
type LogSink struct{}

// Append implements Sink.
func (LogSink) Append(_ context.Context, event *Event) error {
	data, err := json.Marshal(struct {
		Type string `json:"type"`
		*Event
	}{Type: "audit", Event: event})
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier used to correlate audit
// events with request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id, if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
