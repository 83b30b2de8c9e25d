// Package models defines the gateway's domain entities and wire types.
package models

import "time"

// Billing modes for a provider.
const (
	BillingPerToken = "per_token"
	BillingPerCall  = "per_call"
)

// Settings keys consulted by the selector's health filter.
const (
	SettingFailoverThresholdCount  = "failover_threshold_count"
	SettingFailoverThresholdPeriod = "failover_threshold_period_minutes"
)

// Provider is one configured upstream endpoint. The upstream credential is
// write-only from the admin API's point of view and never serialized.
type Provider struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	APIEndpoint     string   `json:"api_endpoint"`
	APIKey          string   `json:"-"`
	Model           string   `json:"model"`
	PricePerMillion *float64 `json:"price_per_million_tokens"`
	InputPricePerM  *float64 `json:"input_price_per_million_tokens"`
	OutputPricePerM *float64 `json:"output_price_per_million_tokens"`
	Type            string   `json:"type"`
	IsActive        bool     `json:"is_active"`
	TotalCalls      int64    `json:"total_calls"`
	SuccessfulCalls int64    `json:"successful_calls"`

	// Populated by admin list queries.
	Groups []Group `json:"groups"`
}

// Group is a named bundle of providers addressed by clients as a model.
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Membership is the (provider, group) edge carrying priority and the
// live-call counter.
type Membership struct {
	ProviderID  int64 `json:"provider_id"`
	GroupID     int64 `json:"group_id"`
	Priority    int   `json:"priority"`
	ActiveCalls int   `json:"active_calls"`
}

// MembershipStatus is a membership joined with provider fields, used by the
// status endpoints.
type MembershipStatus struct {
	ProviderID   int64  `json:"provider_id"`
	GroupID      int64  `json:"group_id"`
	ProviderName string `json:"provider"`
	APIEndpoint  string `json:"api_endpoint"`
	Priority     int    `json:"priority"`
	ActiveCalls  int    `json:"active_calls"`
}

// APIKey is a client credential. Tokens are stored and returned verbatim so
// operators can copy them out of the admin UI at any time.
type APIKey struct {
	ID         int64      `json:"id"`
	Key        string     `json:"key"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	Groups     []Group    `json:"groups"`
	CallCount  int64      `json:"call_count"`
}

// GroupNames returns the names of the key's authorized groups.
func (k *APIKey) GroupNames() []string {
	names := make([]string, 0, len(k.Groups))
	for _, g := range k.Groups {
		names = append(names, g.Name)
	}
	return names
}

// CallLog is one durable record per upstream attempt. Bodies live in the
// call_log_details sidecar; list queries never project them. The detail
// endpoint merges them into RequestBody/ResponseBody.
type CallLog struct {
	ID                int64      `json:"id"`
	ProviderID        *int64     `json:"provider_id"`
	APIKeyID          *int64     `json:"api_key_id"`
	RequestTimestamp  time.Time  `json:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp"`
	IsSuccess         bool       `json:"is_success"`
	StatusCode        *int       `json:"status_code"`
	ResponseTimeMs    *float64   `json:"response_time_ms"`
	ErrorMessage      *string    `json:"error_message"`
	PromptTokens      *int       `json:"prompt_tokens"`
	CompletionTokens  *int       `json:"completion_tokens"`
	TotalTokens       *int       `json:"total_tokens"`
	Cost              *float64   `json:"cost"`

	// Joined display field populated by list queries.
	ProviderName string `json:"provider_name,omitempty"`

	// Sidecar bodies, populated only by the detail lookup.
	RequestBody  *string `json:"request_body,omitempty"`
	ResponseBody *string `json:"response_body,omitempty"`
}

// CallLogDetail is the body sidecar sharing the parent log's id.
type CallLogDetail struct {
	ID           int64   `json:"id"`
	RequestBody  *string `json:"request_body"`
	ResponseBody *string `json:"response_body"`
}

// ErrorKeyword is an operator-declared failure substring. Quota auto-disable
// incidents are recorded in the same table as inactive entries.
type ErrorKeyword struct {
	ID            int64      `json:"id"`
	Keyword       string     `json:"keyword"`
	Description   *string    `json:"description"`
	LastTriggered *time.Time `json:"last_triggered"`
	IsActive      bool       `json:"is_active"`
}

// Setting is a key-value configuration row.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Usage carries token counts extracted from an upstream response. Any field
// may be absent; cost computation treats nil as unknown.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// DashboardStats aggregates call-log data for the admin dashboard. Series
// are parallel arrays shaped for direct chart consumption.
type DashboardStats struct {
	Summary           DashboardSummary `json:"summary"`
	ModelDistribution []NameValue      `json:"model_distribution"`
	DailyCalls        DailySeries      `json:"daily_calls"`
	EndpointStats     EndpointSeries   `json:"endpoint_stats"`
	ModelStats        ModelSeries      `json:"model_stats"`
	CostStats         CostSeries       `json:"cost_stats"`
}

// DashboardSummary holds headline numbers.
type DashboardSummary struct {
	TotalCalls  int64   `json:"total_calls"`
	SuccessRate float64 `json:"success_rate"`
	TotalTokens int64   `json:"total_tokens"`
	APIKeys     int64   `json:"api_keys"`
	TotalCost   float64 `json:"total_cost"`
}

// NameValue is one labeled datum of a distribution chart.
type NameValue struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// DailySeries is call volume per day over a date window.
type DailySeries struct {
	Dates  []string `json:"dates"`
	Values []int64  `json:"values"`
}

// EndpointSeries is per-endpoint volume, success rate, and latency.
type EndpointSeries struct {
	Names        []string  `json:"names"`
	SuccessRates []float64 `json:"success_rates"`
	AvgTimes     []float64 `json:"avg_times"`
	TotalCalls   []int64   `json:"total_calls"`
}

// ModelSeries is per-model average latency.
type ModelSeries struct {
	Names    []string  `json:"names"`
	AvgTimes []float64 `json:"avg_times"`
}

// CostSeries is per-model accumulated cost.
type CostSeries struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

// StatusSnapshot is the public status endpoint payload. The capitalized
// field names are part of the wire contract consumed by existing clients.
type StatusSnapshot struct {
	Groups      []Group            `json:"Groups"`
	Providers   []StatusProvider   `json:"Models"`
	ActiveCalls []MembershipStatus `json:"Association"`
}

// StatusProvider is the trimmed provider view exposed publicly. The
// upstream secret never appears here.
type StatusProvider struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	APIEndpoint string `json:"api_endpoint"`
	IsActive    bool   `json:"is_active"`
}

// RemoteGroup is one authorized group with its member providers in priority
// order, returned by the key-scoped remote management API.
type RemoteGroup struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	Providers []RemoteProvider `json:"providers"`
}

// RemoteProvider is the trimmed member view inside a RemoteGroup.
type RemoteProvider struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Priority int    `json:"priority"`
}
