package auth

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

const (
	PermEmployeesRead  = "core.employees.read"
	PermEmployeesWrite = "core.employees.write"
	PermOrgRead        = "core.org.read"
	PermOrgWrite       = "core.org.write"
	PermKpiRead        = "kpi.read"
	PermKpiWrite       = "kpi.write"
	PermKpiAssign      = "kpi.assign"
	PermKpiApprove     = "kpi.approve"
	PermRewardsRead    = "rewards.read"
	PermRewardsWrite   = "rewards.write"
	PermReportsRead    = "reports.read"
	PermReportsExport  = "reports.export"
	PermAuditRead      = "audit.read"
	PermSystemAdmin    = "admin.system"
)

var DefaultPermissions = []string{
	PermEmployeesRead,
	PermEmployeesWrite,
	PermOrgRead,
	PermOrgWrite,
	PermKpiRead,
	PermKpiWrite,
	PermKpiAssign,
	PermKpiApprove,
	PermRewardsRead,
	PermRewardsWrite,
	PermReportsRead,
	PermReportsExport,
	PermAuditRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermEmployeesRead,
		PermOrgRead,
		PermKpiRead,
		PermKpiWrite,
		PermRewardsRead,
		PermReportsRead,
	},
	RoleAdmin: {
		PermEmployeesRead,
		PermEmployeesWrite,
		PermOrgRead,
		PermOrgWrite,
		PermKpiRead,
		PermKpiWrite,
		PermKpiAssign,
		PermKpiApprove,
		PermRewardsRead,
		PermRewardsWrite,
		PermReportsRead,
		PermReportsExport,
		PermAuditRead,
		PermSystemAdmin,
	},
}
