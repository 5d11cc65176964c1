package auth

// UserContext is the authenticated caller as seen by handlers. EmployeeID is
// empty for users without an employee profile (e.g. the seeded admin).
type UserContext struct {
	UserID     string
	TenantID   string
	RoleID     string
	RoleName   string
	EmployeeID string
	SessionID  string
}
