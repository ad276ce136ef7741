// internal/types/types.go
package types

// Role defines an agent's position in the organizational hierarchy
type Role string

const (
	RoleExecutive             Role = "executive"
	RoleSeniorManagement      Role = "senior_management"
	RoleMiddleManagement      Role = "middle_management"
	RoleIndividualContributor Role = "individual_contributor"
	RoleIntern                Role = "intern"
)

// authorityRank orders roles for approval gating.
// Higher rank = more authority.
var authorityRank = map[Role]int{
	RoleIntern:                1,
	RoleIndividualContributor: 2,
	RoleMiddleManagement:      3,
	RoleSeniorManagement:      4,
	RoleExecutive:             5,
}

// AuthorityRank returns the ordinal authority of a role (0 for unknown roles)
func AuthorityRank(role Role) int {
	return authorityRank[role]
}

// HasAuthority reports whether role carries at least the authority of required
func HasAuthority(role, required Role) bool {
	return AuthorityRank(role) >= AuthorityRank(required)
}

// AllRoles returns every defined role, lowest authority first
func AllRoles() []Role {
	return []Role{
		RoleIntern,
		RoleIndividualContributor,
		RoleMiddleManagement,
		RoleSeniorManagement,
		RoleExecutive,
	}
}

// ValidRole reports whether role is one of the defined roles
func ValidRole(role Role) bool {
	_, ok := authorityRank[role]
	return ok
}

// WebSocket message envelope sent to dashboard clients
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WebSocket message type constants
const (
	WSTypeStateUpdate = "state_update"
	WSTypeTaskUpdate  = "task_update"
	WSTypeLockUpdate  = "lock_update"
	WSTypeApproval    = "approval"
	WSTypeMessage     = "message"
	WSTypeAgentState  = "agent_state"
)
