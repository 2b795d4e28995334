// Package state manages per-user conversation state: the current wizard step
// and the scratch flow data accumulated across a wizard's steps.
package state

import (
	"strings"
	"time"
)

// Step identifies the wizard step a user is currently on. Steps are
// namespaced by wizard prefix, e.g. "exchange_step_amount" or
// "kyc_step_otp:12345". The empty Step means no wizard is active.
type Step string

// HasPrefix reports whether the step belongs to the given wizard namespace.
func (s Step) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(s), prefix)
}

// Payload returns the portion after the first ':' for parametrized steps
// such as "kyc_step_otp:<code>". Empty when the step carries no payload.
func (s Step) Payload() string {
	idx := strings.Index(string(s), ":")
	if idx < 0 {
		return ""
	}
	return string(s)[idx+1:]
}

// Base returns the step without its payload.
func (s Step) Base() Step {
	idx := strings.Index(string(s), ":")
	if idx < 0 {
		return s
	}
	return s[:idx]
}

// Session captures the full conversation state for one user. At most one
// wizard is active per user: starting a new wizard overwrites the session.
type Session struct {
	UserID    int64             `json:"user_id"`
	Step      Step              `json:"step"`
	FlowData  map[string]string `json:"flow_data,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}
