package sqlstore

import (
	"time"

	"github.com/goliatone/go-integrations/core"
)

func newIntegrationRecord(in core.Integration, now time.Time) *integrationRecord {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &integrationRecord{
		ID:           in.ID.String(),
		TenantID:     in.TenantID.String(),
		ProviderID:   in.ProviderID,
		Status:       string(in.Status),
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		Scopes:       append([]string{}, in.ScopesGranted...),
		LastError:    in.LastError,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}
}

func (r *integrationRecord) toDomain() core.Integration {
	if r == nil {
		return core.Integration{}
	}
	return core.Integration{
		ID:            core.ObjectID(r.ID),
		TenantID:      core.ObjectID(r.TenantID),
		ProviderID:    r.ProviderID,
		Status:        core.IntegrationStatus(r.Status),
		AccessToken:   r.AccessToken,
		RefreshToken:  r.RefreshToken,
		ScopesGranted: append([]string{}, r.Scopes...),
		LastError:     r.LastError,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r *cloudProviderRecord) toDomain() core.CloudProvider {
	if r == nil {
		return core.CloudProvider{}
	}
	return core.CloudProvider{
		ID:           r.ID,
		Name:         r.Name,
		AuthURL:      r.AuthURL,
		TokenURL:     r.TokenURL,
		Enabled:      r.Enabled,
		DefaultScope: append([]string{}, r.DefaultScope...),
	}
}

func newCloudProviderRecord(in core.CloudProvider, now time.Time) *cloudProviderRecord {
	return &cloudProviderRecord{
		ID:           in.ID,
		Name:         in.Name,
		AuthURL:      in.AuthURL,
		TokenURL:     in.TokenURL,
		Enabled:      in.Enabled,
		DefaultScope: append([]string{}, in.DefaultScope...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newCallbackAttemptRecord(in core.CallbackAttempt) *callbackAttemptRecord {
	issues := make([]string, 0, len(in.SecurityIssues))
	for _, issue := range in.SecurityIssues {
		issues = append(issues, string(issue))
	}
	return &callbackAttemptRecord{
		ID:             in.ID,
		EventType:      in.EventType,
		UserID:         in.UserID.String(),
		IntegrationID:  in.IntegrationID.String(),
		TenantID:       in.TenantID.String(),
		ProviderID:     in.ProviderID,
		Outcome:        string(in.Outcome),
		ErrorCode:      in.ErrorCode,
		SecurityIssues: issues,
		IP:             in.IP,
		UserAgent:      in.UserAgent,
		StateAgeMS:     in.StateAgeMS,
		OccurredAt:     in.Timestamp,
	}
}

func (r *callbackAttemptRecord) toDomain() core.CallbackAttempt {
	if r == nil {
		return core.CallbackAttempt{}
	}
	issues := make([]core.SecurityIssue, 0, len(r.SecurityIssues))
	for _, issue := range r.SecurityIssues {
		issues = append(issues, core.SecurityIssue(issue))
	}
	return core.CallbackAttempt{
		ID:             r.ID,
		EventType:      r.EventType,
		UserID:         core.ObjectID(r.UserID),
		IntegrationID:  core.ObjectID(r.IntegrationID),
		TenantID:       core.ObjectID(r.TenantID),
		ProviderID:     r.ProviderID,
		Outcome:        core.CallbackOutcome(r.Outcome),
		ErrorCode:      r.ErrorCode,
		SecurityIssues: issues,
		IP:             r.IP,
		UserAgent:      r.UserAgent,
		StateAgeMS:     r.StateAgeMS,
		Timestamp:      r.OccurredAt,
	}
}
