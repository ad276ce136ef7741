// internal/approvals/types.go
package approvals

import (
	"time"

	"github.com/agentcoord/internal/types"
)

// DecisionType classifies what is being approved
type DecisionType string

const (
	DecisionBudget       DecisionType = "budget"
	DecisionHiring       DecisionType = "hiring"
	DecisionScaling      DecisionType = "scaling"
	DecisionArchitecture DecisionType = "architecture"
	DecisionPolicy       DecisionType = "policy"
	DecisionAccess       DecisionType = "access"
)

// Valid reports whether d is a defined decision type
func (d DecisionType) Valid() bool {
	switch d {
	case DecisionBudget, DecisionHiring, DecisionScaling,
		DecisionArchitecture, DecisionPolicy, DecisionAccess:
		return true
	}
	return false
}

// RequiredAuthority returns the minimum role that may decide. Budget
// thresholds step up with the amount; other decision types use a fixed
// table.
func RequiredAuthority(decision DecisionType, amount float64) types.Role {
	if decision == DecisionBudget {
		switch {
		case amount > 100000:
			return types.RoleExecutive
		case amount > 25000:
			return types.RoleSeniorManagement
		case amount > 5000:
			return types.RoleMiddleManagement
		default:
			return types.RoleIndividualContributor
		}
	}
	switch decision {
	case DecisionPolicy:
		return types.RoleExecutive
	case DecisionHiring, DecisionArchitecture:
		return types.RoleSeniorManagement
	default:
		return types.RoleMiddleManagement
	}
}

// RequestStatus is the lifecycle state of an approval request
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusEscalated RequestStatus = "escalated"
)

// Request is one decision routed for approval
type Request struct {
	ID               string        `json:"id"`
	ProjectID        string        `json:"project_id"`
	Requester        string        `json:"requester"`
	DecisionType     DecisionType  `json:"decision_type"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Justification    string        `json:"justification"`
	Amount           float64       `json:"amount,omitempty"`
	Priority         string        `json:"priority"`
	RequiredRole     types.Role    `json:"required_role"`
	CurrentApprover  string        `json:"current_approver"`
	Status           RequestStatus `json:"status"`
	Reasoning        string        `json:"reasoning,omitempty"`
	EscalationReason string        `json:"escalation_reason,omitempty"`
	Escalations      int           `json:"escalations"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	DecidedAt        *time.Time    `json:"decided_at,omitempty"`
}

// Rule escalates pending requests of one decision type after MaxAge
// without a decision. A zero DecisionType matches every type.
type Rule struct {
	DecisionType DecisionType
	MaxAge       time.Duration
}

// Matches reports whether the rule applies to the request
func (r Rule) Matches(req *Request) bool {
	return r.DecisionType == "" || r.DecisionType == req.DecisionType
}
