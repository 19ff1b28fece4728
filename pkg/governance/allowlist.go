package governance

import (
	"errors"
	"fmt"
)

// ErrActionDenied is returned by CheckAction for a forbidden action.
var ErrActionDenied = errors.New("action denied by governance policy")

// ActionPolicy restricts which automated actions may be dispatched.
type ActionPolicy struct {
	AllowedActions []string `yaml:"allowed_actions,omitempty"`
	DeniedActions  []string `yaml:"denied_actions,omitempty"`
}

// CheckAction validates an action name against the allowlist/denylist.
// Deny takes precedence over allow; an empty allowlist allows everything.
func (p ActionPolicy) CheckAction(name string) error {
	for _, denied := range p.DeniedActions {
		if name == denied {
			return fmt.Errorf("%q: %w", name, ErrActionDenied)
		}
	}
	if len(p.AllowedActions) > 0 {
		for _, allowed := range p.AllowedActions {
			if name == allowed {
				return nil
			}
		}
		return fmt.Errorf("%q is not in the allowlist: %w", name, ErrActionDenied)
	}
	return nil
}
