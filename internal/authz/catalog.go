package authz

// Permission tokens used by the surrounding application. The catalog is
// open-ended: new tokens only require a role permission update, never a
// change here. These constants exist so handlers and seeds avoid string
// literals.
const (
	PermUserCreate = "user:create"
	PermUserRead   = "user:read"
	PermUserUpdate = "user:update"
	PermUserDelete = "user:delete"
	PermUserList   = "user:list"
	PermUserRoles  = "user:roles"

	PermRoleCreate      = "role:create"
	PermRoleRead        = "role:read"
	PermRoleUpdate      = "role:update"
	PermRoleDelete      = "role:delete"
	PermRoleList        = "role:list"
	PermRolePermissions = "role:permissions"

	PermActivityCreate  = "activity:create"
	PermActivityRead    = "activity:read"
	PermActivityUpdate  = "activity:update"
	PermActivityDelete  = "activity:delete"
	PermActivityList    = "activity:list"
	PermActivityPublish = "activity:publish"
	PermActivityCancel  = "activity:cancel"
	PermActivityArchive = "activity:archive"

	PermEnrollmentCreate  = "enrollment:create"
	PermEnrollmentRead    = "enrollment:read"
	PermEnrollmentUpdate  = "enrollment:update"
	PermEnrollmentDelete  = "enrollment:delete"
	PermEnrollmentList    = "enrollment:list"
	PermEnrollmentApprove = "enrollment:approve"
	PermEnrollmentCheckin = "enrollment:checkin"

	PermSystemSettings = "system:settings"
	PermSystemLog      = "system:log"
	PermSystemBackup   = "system:backup"
	PermSystemRestore  = "system:restore"

	PermAIUse   = "ai:use"
	PermAIAdmin = "ai:admin"
)

// Baseline role codes seeded at startup.
const (
	CodeSuperAdmin = "super_admin"
	CodeOrganizer  = "organizer"
	CodeNormalUser = "normal_user"
)

// SuperAdminPermissions returns the full catalog.
func SuperAdminPermissions() []string {
	return []string{
		PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete, PermUserList, PermUserRoles,
		PermRoleCreate, PermRoleRead, PermRoleUpdate, PermRoleDelete, PermRoleList, PermRolePermissions,
		PermActivityCreate, PermActivityRead, PermActivityUpdate, PermActivityDelete, PermActivityList,
		PermActivityPublish, PermActivityCancel, PermActivityArchive,
		PermEnrollmentCreate, PermEnrollmentRead, PermEnrollmentUpdate, PermEnrollmentDelete,
		PermEnrollmentList, PermEnrollmentApprove, PermEnrollmentCheckin,
		PermSystemSettings, PermSystemLog, PermSystemBackup, PermSystemRestore,
		PermAIUse, PermAIAdmin,
	}
}

// OrganizerPermissions returns the activity and enrollment management subset.
func OrganizerPermissions() []string {
	return []string{
		PermUserRead, PermUserList,
		PermActivityCreate, PermActivityRead, PermActivityUpdate, PermActivityDelete, PermActivityList,
		PermActivityPublish, PermActivityCancel, PermActivityArchive,
		PermEnrollmentRead, PermEnrollmentList, PermEnrollmentApprove, PermEnrollmentCheckin,
		PermAIUse,
	}
}

// NormalUserPermissions returns the self-service subset.
func NormalUserPermissions() []string {
	return []string{
		PermUserRead,
		PermActivityRead, PermActivityList,
		PermEnrollmentCreate, PermEnrollmentRead, PermEnrollmentUpdate, PermEnrollmentDelete,
		PermAIUse,
	}
}
