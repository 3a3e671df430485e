package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:integrations,alias:itg"`

	ID           string     `bun:"id,pk"`
	TenantID     string     `bun:"tenant_id,notnull"`
	ProviderID   string     `bun:"provider_id,notnull"`
	Status       string     `bun:"status,notnull"`
	AccessToken  string     `bun:"access_token"`
	RefreshToken string     `bun:"refresh_token"`
	Scopes       []string   `bun:"scopes,type:jsonb,notnull"`
	LastError    string     `bun:"last_error"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt    *time.Time `bun:"deleted_at,soft_delete"`
}

type tenantMemberRecord struct {
	bun.BaseModel `bun:"table:tenant_members,alias:tm"`

	ID        string     `bun:"id,pk"`
	TenantID  string     `bun:"tenant_id,notnull"`
	UserID    string     `bun:"user_id,notnull"`
	Role      string     `bun:"role,notnull"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	RevokedAt *time.Time `bun:"revoked_at,nullzero"`
}

type cloudProviderRecord struct {
	bun.BaseModel `bun:"table:cloud_providers,alias:cp"`

	ID           string    `bun:"id,pk"`
	Name         string    `bun:"name,notnull"`
	AuthURL      string    `bun:"auth_url,notnull"`
	TokenURL     string    `bun:"token_url,notnull"`
	Enabled      bool      `bun:"enabled,notnull"`
	DefaultScope []string  `bun:"default_scope,type:jsonb,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type callbackAttemptRecord struct {
	bun.BaseModel `bun:"table:callback_attempts,alias:ca"`

	ID             string    `bun:"id,pk"`
	EventType      string    `bun:"event_type,notnull"`
	UserID         string    `bun:"user_id"`
	IntegrationID  string    `bun:"integration_id"`
	TenantID       string    `bun:"tenant_id"`
	ProviderID     string    `bun:"provider_id"`
	Outcome        string    `bun:"outcome,notnull"`
	ErrorCode      string    `bun:"error_code"`
	SecurityIssues []string  `bun:"security_issues,type:jsonb,notnull"`
	IP             string    `bun:"ip"`
	UserAgent      string    `bun:"user_agent"`
	StateAgeMS     int64     `bun:"state_age_ms,notnull"`
	OccurredAt     time.Time `bun:"occurred_at,nullzero,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
