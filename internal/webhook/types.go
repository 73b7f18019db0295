// Package webhook resolves tenant webhook rules and fans AI results out to
// their targets concurrently with per-target failure isolation.
package webhook

import "time"

// ConditionValueEquals is the only supported filter condition: the AI
// response's structured "value" field must equal the rule's expected value.
const ConditionValueEquals = "value_equals"

// Rule is a tenant-configured callback target. A rule with an empty
// ServiceID is global for the tenant; a rule with an empty ProjectKey
// applies to every project of the scoped service.
type Rule struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ServiceID       string    `json:"service_id,omitempty"`
	ProjectKey      string    `json:"project_key,omitempty"`
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	Enabled         bool      `json:"enabled"`
	FilterEnabled   bool      `json:"filter_enabled"`
	FilterCondition string    `json:"filter_condition,omitempty"`
	FilterValue     string    `json:"filter_value,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Delivery status of a single rule within one Dispatch call.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Outcome records how one rule settled. Failures stay here; they are never
// propagated to the dispatch caller.
type Outcome struct {
	RuleID   string        `json:"rule_id"`
	RuleName string        `json:"rule_name"`
	URL      string        `json:"url"`
	Status   string        `json:"status"`
	HTTPCode int           `json:"http_code,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}
