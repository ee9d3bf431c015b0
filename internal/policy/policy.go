// Package policy is the role policy engine: a pure decision table mapping a
// company role and an action to allow/deny. It has no side effects and no
// persistence; callers resolve the role themselves (see package access).
package policy

// Role is a user's role within one company.
type Role string

// Company roles. RoleNone is the zero value and stands for "not a member".
const (
	RoleNone    Role = ""
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleViewer  Role = "viewer"
)

// Roles returns every assignable role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleMember, RoleViewer}
}

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember, RoleViewer:
		return true
	}
	return false
}

// ParseRole converts s into a Role. ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Action is an operation gated by the policy.
type Action string

// Gated actions.
const (
	CreateAnnouncement    Action = "create_announcement"
	EditAnnouncement      Action = "edit_announcement"
	DeleteAnnouncement    Action = "delete_announcement"
	ManageUsers           Action = "manage_users"
	ViewAnalytics         Action = "view_analytics"
	ManageCompanySettings Action = "manage_company_settings"
	CreateSurvey          Action = "create_survey"
	ManageSurveys         Action = "manage_surveys"
	ViewSurveyResults     Action = "view_survey_results"
	ManageLocations       Action = "manage_locations"
	DeleteLocation        Action = "delete_location"
)

var (
	adminOnly       = []Role{RoleAdmin}
	adminAndManager = []Role{RoleAdmin, RoleManager}
)

// table lists the eligible roles per action explicitly; no role inherits the
// permissions of another.
var table = map[Action][]Role{
	CreateAnnouncement:    adminAndManager,
	EditAnnouncement:      adminAndManager,
	DeleteAnnouncement:    adminOnly,
	ManageUsers:           adminOnly,
	ViewAnalytics:         adminAndManager,
	ManageCompanySettings: adminOnly,
	CreateSurvey:          adminAndManager,
	ManageSurveys:         adminAndManager,
	ViewSurveyResults:     adminAndManager,
	ManageLocations:       adminAndManager,
	DeleteLocation:        adminOnly,
}

// Actions returns every gated action.
func Actions() []Action {
	return []Action{
		CreateAnnouncement, EditAnnouncement, DeleteAnnouncement,
		ManageUsers, ViewAnalytics, ManageCompanySettings,
		CreateSurvey, ManageSurveys, ViewSurveyResults,
		ManageLocations, DeleteLocation,
	}
}

// ParseAction converts s into an Action. ok is false for unknown actions.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := table[a]
	return a, ok
}

// CanPerform reports whether role may perform action. Unknown actions and
// RoleNone are always denied.
func CanPerform(role Role, action Action) bool {
	if role == RoleNone {
		return false
	}
	for _, r := range table[action] {
		if r == role {
			return true
		}
	}
	return false
}
