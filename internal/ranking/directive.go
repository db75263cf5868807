package ranking

import (
	"fmt"
	"strings"
	"time"
)

// Scope is the kind of scope a directive applies to.
type Scope int

const (
	ScopeGlobal Scope = iota + 1
	ScopeCategory
	ScopeQuery
)

// ParseScope parses a scope kind as stored and exchanged over the API.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "global":
		return ScopeGlobal, nil
	case "category":
		return ScopeCategory, nil
	case "query":
		return ScopeQuery, nil
	default:
		return 0, fmt.Errorf("unknown scope kind %q", s)
	}
}

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeCategory:
		return "category"
	case ScopeQuery:
		return "query"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Specificity orders scopes: query > category > global. Unknown scopes rank below global.
func (s Scope) Specificity() int {
	switch s {
	case ScopeQuery:
		return 3
	case ScopeCategory:
		return 2
	case ScopeGlobal:
		return 1
	default:
		return 0
	}
}

// MoreSpecific reports whether a outranks b.
func MoreSpecific(a, b Scope) bool {
	return a.Specificity() > b.Specificity()
}

// Action is what a directive does to its target.
type Action int

const (
	ActionPin Action = iota + 1
	ActionBoost
	ActionDemote
	ActionExclude
)

// ParseAction parses an action name.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pin":
		return ActionPin, nil
	case "boost":
		return ActionBoost, nil
	case "demote":
		return ActionDemote, nil
	case "exclude":
		return ActionExclude, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionPin:
		return "pin"
	case ActionBoost:
		return "boost"
	case ActionDemote:
		return "demote"
	case ActionExclude:
		return "exclude"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// DefaultWeight returns the weight used when a directive is authored without one.
// For pins the weight orders pinned items (higher first).
func (a Action) DefaultWeight() float64 {
	switch a {
	case ActionPin:
		return 1
	case ActionBoost:
		return 1.5
	case ActionDemote:
		return 0.5
	case ActionExclude:
		return 0
	default:
		return 1
	}
}

// Directive is an operator-authored ranking rule for one target item.
type Directive struct {
	ID         string
	TenantID   string
	Scope      Scope
	ScopeValue string // empty for global
	Target     string // document external id
	Action     Action
	Weight     float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Normalize canonicalizes the scope value and fills the default weight.
func (d *Directive) Normalize() {
	switch d.Scope {
	case ScopeQuery:
		d.ScopeValue = NormalizeQuery(d.ScopeValue)
	case ScopeCategory:
		d.ScopeValue = strings.TrimSpace(d.ScopeValue)
	case ScopeGlobal:
		d.ScopeValue = ""
	}
	d.Target = strings.TrimSpace(d.Target)
	if d.Weight == 0 && d.Action != ActionExclude {
		d.Weight = d.Action.DefaultWeight()
	}
}

// Validate checks a normalized directive. The returned error names the offending field.
func (d *Directive) Validate() error {
	if d.Scope.Specificity() == 0 {
		return &FieldError{Field: "scope_kind", Message: "must be one of query, category, global"}
	}
	if d.Scope != ScopeGlobal && d.ScopeValue == "" {
		return &FieldError{Field: "scope_value", Message: "required for " + d.Scope.String() + " scope"}
	}
	if d.Target == "" {
		return &FieldError{Field: "target", Message: "required"}
	}
	switch d.Action {
	case ActionPin, ActionBoost, ActionDemote, ActionExclude:
	default:
		return &FieldError{Field: "action", Message: "must be one of pin, boost, demote, exclude"}
	}
	if d.Weight < 0 {
		return &FieldError{Field: "weight", Message: "must not be negative"}
	}
	return nil
}

// FieldError reports an invalid directive field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid directive %s: %s", e.Field, e.Message)
}

// NormalizeQuery lowercases, trims and collapses internal whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
