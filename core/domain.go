package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidObjectID                    = errors.New("core: invalid object id")
	ErrInvalidIntegrationStatusTransition = errors.New("core: invalid integration status transition")
	ErrInvalidProviderID                  = errors.New("core: invalid provider id")
)

var objectIDPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

// ObjectID is the fixed external-identifier shape shared with the upstream
// tenant API: 24 lowercase hexadecimal characters.
type ObjectID string

func (id ObjectID) Validate() error {
	if !objectIDPattern.MatchString(string(id)) {
		return fmt.Errorf("%w: %q", ErrInvalidObjectID, string(id))
	}
	return nil
}

func (id ObjectID) String() string {
	return string(id)
}

// StateClaims is the payload round-tripped through the external provider in
// the state parameter. All five fields valid is a precondition for any further
// processing; partial validity is total invalidity.
type StateClaims struct {
	TenantID      ObjectID
	IntegrationID ObjectID
	UserID        ObjectID
	IssuedAt      time.Time
	Nonce         string
}

// Age reports how long ago the state was minted relative to now. Negative
// values mean the issuer's clock is ahead of ours.
func (c StateClaims) Age(now time.Time) time.Duration {
	return now.Sub(c.IssuedAt)
}

type IntegrationStatus string

const (
	IntegrationStatusPending  IntegrationStatus = "pending"
	IntegrationStatusActive   IntegrationStatus = "active"
	IntegrationStatusError    IntegrationStatus = "error"
	IntegrationStatusDisabled IntegrationStatus = "disabled"
)

// Integration is the per-tenant link to a cloud provider. The callback
// pipeline holds a borrowed, time-boxed view and issues a single conditional
// activation update; everything else belongs to the integration store.
type Integration struct {
	ID            ObjectID
	TenantID      ObjectID
	ProviderID    string
	Status        IntegrationStatus
	AccessToken   string
	RefreshToken  string
	ScopesGranted []string
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Configured reports whether the integration already consumed a callback: a
// further valid-looking callback against it is a replay.
func (i Integration) Configured() bool {
	return i.Status == IntegrationStatusActive && strings.TrimSpace(i.AccessToken) != ""
}

func (i *Integration) TransitionTo(status IntegrationStatus, reason string, now time.Time) error {
	if i == nil {
		return nil
	}
	if i.Status == status {
		i.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			i.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !integrationTransitionAllowed(i.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidIntegrationStatusTransition, i.Status, status)
	}
	i.Status = status
	i.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		i.LastError = strings.TrimSpace(reason)
	}
	if status == IntegrationStatusActive {
		i.LastError = ""
	}
	return nil
}

func integrationTransitionAllowed(current, next IntegrationStatus) bool {
	allowed := map[IntegrationStatus]map[IntegrationStatus]struct{}{
		IntegrationStatusPending: {
			IntegrationStatusActive:   {},
			IntegrationStatusError:    {},
			IntegrationStatusDisabled: {},
		},
		IntegrationStatusActive: {
			IntegrationStatusError:    {},
			IntegrationStatusDisabled: {},
		},
		IntegrationStatusError: {
			IntegrationStatusPending:  {},
			IntegrationStatusDisabled: {},
		},
		IntegrationStatusDisabled: {
			IntegrationStatusPending: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// CloudProvider is a catalog entry for an upstream OAuth provider.
type CloudProvider struct {
	ID           string
	Name         string
	AuthURL      string
	TokenURL     string
	Enabled      bool
	DefaultScope []string
}

func (p CloudProvider) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidProviderID)
	}
	return nil
}

type CallbackOutcome string

const (
	CallbackOutcomeSuccess  CallbackOutcome = "success"
	CallbackOutcomeRejected CallbackOutcome = "rejected"
)

// SecurityIssue tags anomalous conditions on a callback attempt. Presence is a
// signal for downstream alerting, never a blocking condition by itself.
type SecurityIssue string

const (
	SecurityIssueReplayDetected  SecurityIssue = "REPLAY_ATTACK_DETECTED"
	SecurityIssueUntrustedHost   SecurityIssue = "UNTRUSTED_HOST"
	SecurityIssueMalformedState  SecurityIssue = "MALFORMED_STATE"
	SecurityIssueStateFromFuture SecurityIssue = "STATE_FROM_FUTURE"
)

// CallbackAttempt is the append-only forensic record of one callback attempt.
// Write-once; never mutated after Append.
type CallbackAttempt struct {
	ID             string
	EventType      string
	UserID         ObjectID
	IntegrationID  ObjectID
	TenantID       ObjectID
	ProviderID     string
	Outcome        CallbackOutcome
	ErrorCode      string
	SecurityIssues []SecurityIssue
	IP             string
	UserAgent      string
	StateAgeMS     int64
	Timestamp      time.Time
}

// FlagSecurityIssue appends a tag preserving pipeline order without duplicates.
func (a *CallbackAttempt) FlagSecurityIssue(issue SecurityIssue) {
	if a == nil {
		return
	}
	for _, existing := range a.SecurityIssues {
		if existing == issue {
			return
		}
	}
	a.SecurityIssues = append(a.SecurityIssues, issue)
}

func (a CallbackAttempt) Flagged() bool {
	return len(a.SecurityIssues) > 0
}
