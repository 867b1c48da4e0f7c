package authz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memoryRepo mirrors the Postgres repository semantics, including the
// uniqueness constraints and the assignment cascade.
type memoryRepo struct {
	mu          sync.Mutex
	roles       map[int64]Role
	assignments map[[2]int64]time.Time
	users       map[int64]struct{}
	nextID      int64
	tick        int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:       make(map[int64]Role),
		assignments: make(map[[2]int64]time.Time),
		users:       make(map[int64]struct{}),
	}
}

func (r *memoryRepo) addUser(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = struct{}{}
}

// now returns a strictly increasing clock so updated_at comparisons are
// deterministic.
func (r *memoryRepo) now() time.Time {
	r.tick++
	return time.Unix(1700000000+r.tick, 0).UTC()
}

func (r *memoryRepo) CreateRole(ctx context.Context, name, code, description string, permissions []string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.roles {
		if existing.Name == name {
			return Role{}, ErrDuplicateName
		}
		if existing.Code == code {
			return Role{}, ErrDuplicateCode
		}
	}
	set, err := NewPermissionSet(permissions...)
	if err != nil {
		return Role{}, err
	}
	r.nextID++
	now := r.now()
	role := Role{
		ID:          r.nextID,
		Name:        name,
		Code:        code,
		Description: description,
		IsActive:    true,
		Permissions: set,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (r *memoryRepo) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Code == code {
			return role, nil
		}
	}
	return Role{}, ErrRoleNotFound
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roles := make([]Role, 0, len(r.roles))
	for id := int64(1); id <= r.nextID; id++ {
		if role, ok := r.roles[id]; ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (r *memoryRepo) UpdateRolePermissions(ctx context.Context, id int64, permissions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return ErrRoleNotFound
	}
	set, err := NewPermissionSet(permissions...)
	if err != nil {
		return err
	}
	role.Permissions = set
	role.UpdatedAt = r.now()
	r.roles[id] = role
	return nil
}

func (r *memoryRepo) SetRoleActive(ctx context.Context, id int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return ErrRoleNotFound
	}
	role.IsActive = active
	role.UpdatedAt = r.now()
	r.roles[id] = role
	return nil
}

func (r *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return ErrRoleNotFound
	}
	delete(r.roles, id)
	for key := range r.assignments {
		if key[1] == id {
			delete(r.assignments, key)
		}
	}
	return nil
}

func (r *memoryRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return ErrReferentialViolation
	}
	if _, ok := r.roles[roleID]; !ok {
		return ErrReferentialViolation
	}
	key := [2]int64{userID, roleID}
	if _, ok := r.assignments[key]; ok {
		return ErrAlreadyAssigned
	}
	r.assignments[key] = r.now()
	return nil
}

func (r *memoryRepo) RevokeRole(ctx context.Context, userID, roleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int64{userID, roleID}
	if _, ok := r.assignments[key]; !ok {
		return ErrNotAssigned
	}
	delete(r.assignments, key)
	return nil
}

func (r *memoryRepo) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var roles []Role
	for id := int64(1); id <= r.nextID; id++ {
		role, ok := r.roles[id]
		if !ok {
			continue
		}
		if _, ok := r.assignments[[2]int64{userID, id}]; ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (r *memoryRepo) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	union := make(PermissionSet)
	for key := range r.assignments {
		if key[0] != userID {
			continue
		}
		role, ok := r.roles[key[1]]
		if !ok || !role.IsActive {
			continue
		}
		union = union.Union(role.Permissions)
	}
	return union.Tokens(), nil
}

func (r *memoryRepo) AssignedUserIDs(ctx context.Context, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int64]struct{})
	var ids []int64
	for key := range r.assignments {
		if _, ok := seen[key[0]]; ok {
			continue
		}
		seen[key[0]] = struct{}{}
		ids = append(ids, key[0])
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	return NewService(repo, nil, nil, nil), repo
}

func TestCreateRoleDuplicateNameAndCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, 1, "Organizer", "organizer", "", []string{PermActivityRead})
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, 1, "Organizer", "organizer_two", "", nil)
	require.ErrorIs(t, err, ErrDuplicateName)

	_, err = svc.CreateRole(ctx, 1, "Other", "organizer", "", nil)
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestCreateRoleRejectsMalformedToken(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, 1, "Broken", "broken", "", []string{"activity:read", "NOT A TOKEN"})
	require.ErrorIs(t, err, ErrInvalidToken)

	roles, err := repo.ListRoles(ctx)
	require.NoError(t, err)
	require.Empty(t, roles, "malformed tokens must never be stored")
}

func TestCreateRoleRejectsBadNameOrCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, 1, "   ", "blank", "", nil)
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.CreateRole(ctx, 1, "Blank", "Not A Code", "", nil)
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestAssignRoleIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(12)

	role, err := svc.CreateRole(ctx, 1, "Admin", "admin", "", []string{PermRoleDelete})
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, 1, 12, role.ID))
	err = svc.AssignRole(ctx, 1, 12, role.ID)
	require.ErrorIs(t, err, ErrAlreadyAssigned)

	roles, err := svc.ListUserRoles(ctx, 12)
	require.NoError(t, err)
	require.Len(t, roles, 1, "duplicate assign must not add a row")
}

func TestAssignRoleUnknownUserOrRole(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, 1, "Admin", "admin", "", nil)
	require.NoError(t, err)

	require.ErrorIs(t, svc.AssignRole(ctx, 1, 999, role.ID), ErrReferentialViolation)

	repo.addUser(5)
	require.ErrorIs(t, svc.AssignRole(ctx, 1, 5, 999), ErrReferentialViolation)
}

func TestRevokeRoleNotAssigned(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(5)

	role, err := svc.CreateRole(ctx, 1, "Admin", "admin", "", nil)
	require.NoError(t, err)

	require.ErrorIs(t, svc.RevokeRole(ctx, 1, 5, role.ID), ErrNotAssigned)

	require.NoError(t, svc.AssignRole(ctx, 1, 5, role.ID))
	require.NoError(t, svc.RevokeRole(ctx, 1, 5, role.ID))
	require.ErrorIs(t, svc.RevokeRole(ctx, 1, 5, role.ID), ErrNotAssigned)
}

func TestEffectivePermissionsUnionOfActiveRoles(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(7)

	reader, err := svc.CreateRole(ctx, 1, "Reader", "reader", "", []string{PermActivityRead, PermActivityList})
	require.NoError(t, err)
	writer, err := svc.CreateRole(ctx, 1, "Writer", "writer", "", []string{PermActivityCreate, PermActivityRead})
	require.NoError(t, err)
	dormant, err := svc.CreateRole(ctx, 1, "Dormant", "dormant", "", []string{PermSystemBackup})
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, 1, 7, reader.ID))
	require.NoError(t, svc.AssignRole(ctx, 1, 7, writer.ID))
	require.NoError(t, svc.AssignRole(ctx, 1, 7, dormant.ID))
	require.NoError(t, svc.DeactivateRole(ctx, 1, dormant.ID))

	tokens, err := svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{PermActivityCreate, PermActivityList, PermActivityRead}, tokens)
}

func TestHasPermissionMatchesEffectivePermissions(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(7)

	role, err := svc.CreateRole(ctx, 1, "Reader", "reader", "", []string{PermActivityRead, PermEnrollmentCreate})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 1, 7, role.ID))

	tokens, err := svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	for _, token := range append(tokens, PermSystemBackup, PermRoleDelete) {
		ok, err := svc.HasPermission(ctx, 7, token)
		require.NoError(t, err)
		inEffective := false
		for _, t2 := range tokens {
			if t2 == token {
				inEffective = true
			}
		}
		require.Equal(t, inEffective, ok, "HasPermission(%q) must agree with EffectivePermissions", token)
	}
}

func TestHasPermissionUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	ok, err := svc.HasPermission(context.Background(), 42, PermActivityRead)
	require.NoError(t, err, "unknown users are a normal outcome, not an error")
	require.False(t, ok)
}

func TestDeactivateRoleExcludesPermissionsButKeepsAssignment(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(28)

	member, err := svc.CreateRole(ctx, 1, "Member", "normal_user", "", NormalUserPermissions())
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 1, 28, member.ID))

	ok, err := svc.HasPermission(ctx, 28, PermActivityRead)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.DeactivateRole(ctx, 1, member.ID))

	ok, err = svc.HasPermission(ctx, 28, PermActivityRead)
	require.NoError(t, err)
	require.False(t, ok, "inactive roles contribute no permissions")

	roles, err := svc.ListUserRoles(ctx, 28)
	require.NoError(t, err)
	require.Len(t, roles, 1, "deactivation retains the assignment row")

	require.NoError(t, svc.ActivateRole(ctx, 1, member.ID))
	ok, err = svc.HasPermission(ctx, 28, PermActivityRead)
	require.NoError(t, err)
	require.True(t, ok, "reactivation restores retained grants")
}

func TestSuperAdminAndMemberScenario(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(12)
	repo.addUser(28)

	admin, err := svc.CreateRole(ctx, 1, "Super Administrator", CodeSuperAdmin, "", SuperAdminPermissions())
	require.NoError(t, err)
	member, err := svc.CreateRole(ctx, 1, "Member", CodeNormalUser, "", NormalUserPermissions())
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, 1, 12, admin.ID))
	require.NoError(t, svc.AssignRole(ctx, 1, 28, member.ID))

	ok, err := svc.HasPermission(ctx, 12, PermRoleDelete)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasPermission(ctx, 28, PermRoleDelete)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteRoleCascadesAssignments(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addUser(5)
	repo.addUser(6)

	role, err := svc.CreateRole(ctx, 1, "Temp", "temp", "", []string{PermAIUse})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 1, 5, role.ID))
	require.NoError(t, svc.AssignRole(ctx, 1, 6, role.ID))

	require.NoError(t, svc.DeleteRole(ctx, 1, role.ID))

	for _, userID := range []int64{5, 6} {
		roles, err := svc.ListUserRoles(ctx, userID)
		require.NoError(t, err)
		require.Empty(t, roles, "no dangling assignment may reference a deleted role")
	}
	require.ErrorIs(t, svc.DeleteRole(ctx, 1, role.ID), ErrRoleNotFound)
}

func TestUpdateRolePermissionsReplacesAtomicallyAndBumpsUpdatedAt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, 1, "Reader", "reader", "", []string{PermActivityRead, PermActivityList})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateRolePermissions(ctx, 1, role.ID, []string{PermEnrollmentApprove}))

	updated, err := svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []string{PermEnrollmentApprove}, updated.Permissions.Tokens())
	require.True(t, updated.UpdatedAt.After(role.UpdatedAt))

	require.ErrorIs(t, svc.UpdateRolePermissions(ctx, 1, 999, []string{PermAIUse}), ErrRoleNotFound)
	require.ErrorIs(t, svc.UpdateRolePermissions(ctx, 1, role.ID, []string{"bogus"}), ErrInvalidToken)
}

func TestEnsureBaselineRolesIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureBaselineRoles(ctx))
	require.NoError(t, svc.EnsureBaselineRoles(ctx))

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)

	admin, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	var found bool
	for _, role := range admin {
		if role.Code == CodeSuperAdmin {
			found = true
			require.True(t, role.Permissions.Has(PermRoleDelete))
			require.True(t, role.Permissions.Has(PermSystemRestore))
		}
	}
	require.True(t, found)
}
