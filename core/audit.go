package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	CallbackEventType = "oauth.callback"
	InitiateEventType = "oauth.initiate"
)

// JobIDAuditFlush retries audit records that could not be appended inline.
const JobIDAuditFlush = "integrations.audit.flush"

// AuditRecorder writes one CallbackAttempt per attempt, success or failure.
// A sink failure never alters the user-facing outcome: it is logged to the
// fallback channel, and attempts carrying security issues are additionally
// queued durably so the alerting trail survives the sink outage.
type AuditRecorder struct {
	sink   AuditSink
	queue  JobEnqueuer
	logger Logger
	Now    func() time.Time
}

func NewAuditRecorder(sink AuditSink, queue JobEnqueuer, logger Logger) *AuditRecorder {
	return &AuditRecorder{
		sink:   sink,
		queue:  queue,
		logger: logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Record appends the attempt. The returned error is always ErrAuditWriteFailed
// or nil; callers log it and proceed, they never gate the flow on it.
func (r *AuditRecorder) Record(ctx context.Context, attempt CallbackAttempt) error {
	if r == nil || r.sink == nil {
		return fmt.Errorf("%w: recorder is not configured", ErrAuditWriteFailed)
	}
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = r.now()
	}
	if attempt.EventType == "" {
		attempt.EventType = CallbackEventType
	}

	appendErr := r.sink.Append(ctx, attempt)
	if appendErr == nil {
		return nil
	}

	r.logFallback(ctx, attempt, appendErr)
	if attempt.Flagged() && r.queue != nil {
		queueErr := r.queue.Enqueue(ctx, &JobExecutionMessage{
			JobID:          JobIDAuditFlush,
			Parameters:     attemptToParameters(attempt),
			IdempotencyKey: attempt.ID,
		})
		if queueErr == nil {
			return nil
		}
		r.logFallback(ctx, attempt, queueErr)
	}
	return fmt.Errorf("%w: %v", ErrAuditWriteFailed, appendErr)
}

func (r *AuditRecorder) logFallback(ctx context.Context, attempt CallbackAttempt, cause error) {
	if r == nil || r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("audit append failed, falling back",
		"attempt_id", attempt.ID,
		"event_type", attempt.EventType,
		"tenant_id", attempt.TenantID.String(),
		"integration_id", attempt.IntegrationID.String(),
		"outcome", string(attempt.Outcome),
		"error_code", attempt.ErrorCode,
		"security_issues", securityIssueStrings(attempt.SecurityIssues),
		"error", cause.Error(),
	)
}

func (r *AuditRecorder) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func attemptToParameters(attempt CallbackAttempt) map[string]any {
	return map[string]any{
		"id":              attempt.ID,
		"event_type":      attempt.EventType,
		"user_id":         attempt.UserID.String(),
		"integration_id":  attempt.IntegrationID.String(),
		"tenant_id":       attempt.TenantID.String(),
		"provider_id":     attempt.ProviderID,
		"outcome":         string(attempt.Outcome),
		"error_code":      attempt.ErrorCode,
		"security_issues": securityIssueStrings(attempt.SecurityIssues),
		"ip":              attempt.IP,
		"user_agent":      attempt.UserAgent,
		"state_age_ms":    attempt.StateAgeMS,
		"timestamp":       attempt.Timestamp.Format(time.RFC3339Nano),
	}
}

// CallbackAttemptFromParameters rebuilds an attempt from the queue payload
// produced when an inline audit write failed.
func CallbackAttemptFromParameters(params map[string]any) (CallbackAttempt, error) {
	if len(params) == 0 {
		return CallbackAttempt{}, fmt.Errorf("core: audit flush parameters are empty")
	}
	attempt := CallbackAttempt{
		ID:            paramString(params, "id"),
		EventType:     paramString(params, "event_type"),
		UserID:        ObjectID(paramString(params, "user_id")),
		IntegrationID: ObjectID(paramString(params, "integration_id")),
		TenantID:      ObjectID(paramString(params, "tenant_id")),
		ProviderID:    paramString(params, "provider_id"),
		Outcome:       CallbackOutcome(paramString(params, "outcome")),
		ErrorCode:     paramString(params, "error_code"),
		IP:            paramString(params, "ip"),
		UserAgent:     paramString(params, "user_agent"),
	}
	if attempt.ID == "" {
		return CallbackAttempt{}, fmt.Errorf("core: audit flush parameters are missing an attempt id")
	}
	switch typed := params["state_age_ms"].(type) {
	case int64:
		attempt.StateAgeMS = typed
	case int:
		attempt.StateAgeMS = int64(typed)
	case float64:
		attempt.StateAgeMS = int64(typed)
	}
	if raw := paramString(params, "timestamp"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return CallbackAttempt{}, fmt.Errorf("core: parse audit flush timestamp: %w", err)
		}
		attempt.Timestamp = parsed
	}
	switch typed := params["security_issues"].(type) {
	case []string:
		for _, issue := range typed {
			attempt.FlagSecurityIssue(SecurityIssue(issue))
		}
	case []any:
		for _, issue := range typed {
			if value, ok := issue.(string); ok {
				attempt.FlagSecurityIssue(SecurityIssue(value))
			}
		}
	}
	return attempt, nil
}

func paramString(params map[string]any, key string) string {
	value, ok := params[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func securityIssueStrings(issues []SecurityIssue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, string(issue))
	}
	return out
}

// MemoryAuditSink keeps attempts in order of arrival. Test and development
// use only.
type MemoryAuditSink struct {
	mu      sync.Mutex
	entries []CallbackAttempt
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) Append(_ context.Context, attempt CallbackAttempt) error {
	if s == nil {
		return fmt.Errorf("core: audit sink is not configured")
	}
	s.mu.Lock()
	s.entries = append(s.entries, cloneCallbackAttempt(attempt))
	s.mu.Unlock()
	return nil
}

func (s *MemoryAuditSink) Entries() []CallbackAttempt {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallbackAttempt, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, cloneCallbackAttempt(entry))
	}
	return out
}

func cloneCallbackAttempt(attempt CallbackAttempt) CallbackAttempt {
	cloned := attempt
	cloned.SecurityIssues = append([]SecurityIssue(nil), attempt.SecurityIssues...)
	return cloned
}

var _ AuditSink = (*MemoryAuditSink)(nil)
