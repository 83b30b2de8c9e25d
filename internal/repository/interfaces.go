// Package repository defines data access interfaces and implementations.
package repository

import (
	"context"
	"time"

	"github.com/llmrelay/llmrelay/internal/models"
)

// ProviderFilter narrows and pages provider list queries.
type ProviderFilter struct {
	Name     string
	Endpoint string
	Offset   int
	Limit    int
}

// Candidate pairs a provider with its membership edge for selection.
type Candidate struct {
	Provider   models.Provider
	Membership models.Membership
}

// ProviderRepository provides access to upstream provider records.
type ProviderRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Provider, error)
	FindByName(ctx context.Context, name string) (*models.Provider, error)
	FindByTriplet(ctx context.Context, endpoint, apiKey, model string) (*models.Provider, error)
	FindByEndpointKey(ctx context.Context, endpoint, apiKey string) ([]*models.Provider, error)
	FindAll(ctx context.Context, f ProviderFilter) ([]*models.Provider, int64, error)
	Insert(ctx context.Context, p *models.Provider) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	Delete(ctx context.Context, id int64) error
	DeleteByUpstreamKey(ctx context.Context, apiKey string) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
	// DisableWithIncident clears the active flag and records an incident row
	// in the error_maintenance table within one transaction.
	DisableWithIncident(ctx context.Context, id int64, keyword, details string) error
	GroupsFor(ctx context.Context, providerID int64) ([]models.Group, error)
}

// GroupRepository provides access to provider groups.
type GroupRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Group, error)
	FindByName(ctx context.Context, name string) (*models.Group, error)
	FindAll(ctx context.Context, offset, limit int) ([]*models.Group, int64, error)
	Insert(ctx context.Context, name string) (int64, error)
	Delete(ctx context.Context, id int64) error
	ProvidersFor(ctx context.Context, groupID int64) ([]*models.Provider, error)
}

// MembershipRepository manages the provider-group association edges and
// their live-call counters.
type MembershipRepository interface {
	// Upsert inserts the edge or, when it already exists, updates only its
	// priority. The active_calls counter is never touched by upserts.
	Upsert(ctx context.Context, providerID, groupID int64, priority int) error
	Remove(ctx context.Context, providerID, groupID int64) (bool, error)
	// ReplaceForGroup atomically swaps every edge of a group.
	ReplaceForGroup(ctx context.Context, groupID int64, members []models.Membership) error
	ListByGroup(ctx context.Context, groupID int64) ([]*models.Membership, error)
	ListStatuses(ctx context.Context) ([]models.MembershipStatus, error)
	// CandidatesForGroup returns active, non-excluded members of a group
	// ordered by ascending priority, then active_calls, then provider id.
	CandidatesForGroup(ctx context.Context, groupID int64, excluded []int64) ([]Candidate, error)
	IncrementActive(ctx context.Context, providerID, groupID int64) error
	// DecrementActive is a no-op when the counter is already zero.
	DecrementActive(ctx context.Context, providerID, groupID int64) error
	ResetAllActive(ctx context.Context) error
}

// APIKeyRepository provides access to client credentials.
type APIKeyRepository interface {
	FindByKey(ctx context.Context, key string) (*models.APIKey, error)
	FindByID(ctx context.Context, id int64) (*models.APIKey, error)
	FindAll(ctx context.Context, offset, limit int) ([]*models.APIKey, error)
	Insert(ctx context.Context, key *models.APIKey, groupIDs []int64) (int64, error)
	// Update applies the active flag and, when groupIDs is non-nil, replaces
	// the key's group links.
	Update(ctx context.Context, id int64, isActive *bool, groupIDs []int64) error
	Delete(ctx context.Context, id int64) error
	TouchLastUsed(ctx context.Context, id int64) error
}

// CallLogFilter narrows and pages call-log list queries.
type CallLogFilter struct {
	Success    *bool
	ProviderID *int64
	APIKeyID   *int64
	Offset     int
	Limit      int
}

// CallLogRepository provides access to the per-attempt audit trail.
type CallLogRepository interface {
	// Insert writes the log row, its body sidecar, and the owning
	// provider's lifetime counters in one transaction.
	Insert(ctx context.Context, log *models.CallLog, requestBody, responseBody *string) (int64, error)
	List(ctx context.Context, f CallLogFilter) ([]*models.CallLog, int64, error)
	// FindByID returns the log with sidecar bodies merged in.
	FindByID(ctx context.Context, id int64) (*models.CallLog, error)
	CountRecentFailures(ctx context.Context, providerID int64, since time.Time) (int, error)
	DashboardStats(ctx context.Context, now time.Time) (*models.DashboardStats, error)
	// PruneBefore deletes logs older than the cutoff, sidecars included.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// KeywordRepository provides access to failure keywords.
type KeywordRepository interface {
	FindByID(ctx context.Context, id int64) (*models.ErrorKeyword, error)
	FindAll(ctx context.Context, offset, limit int) ([]*models.ErrorKeyword, error)
	FindAllActive(ctx context.Context) ([]*models.ErrorKeyword, error)
	Insert(ctx context.Context, kw *models.ErrorKeyword) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	Delete(ctx context.Context, id int64) error
	TouchTriggered(ctx context.Context, id int64) error
}

// SettingsRepository provides access to the key-value settings table.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	// Find returns nil when the key does not exist, unlike Get which
	// folds absence into the empty string.
	Find(ctx context.Context, key string) (*models.Setting, error)
	GetInt(ctx context.Context, key string, fallback int) (int, error)
	List(ctx context.Context) ([]*models.Setting, error)
	Set(ctx context.Context, key, value string) error
	// Seed inserts defaults without overwriting existing values.
	Seed(ctx context.Context, defaults map[string]string) error
}
