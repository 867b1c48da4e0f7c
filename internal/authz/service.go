package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-iam/gatehouse/internal/audit"
)

// Recorder persists administrative change records.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service orchestrates role and assignment operations and answers
// permission checks.
type Service struct {
	repo   Repository
	cache  *Cache
	audit  Recorder
	logger *slog.Logger
}

// NewService constructs a Service. Cache and audit may be nil.
func NewService(repo Repository, cache *Cache, recorder Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, audit: recorder, logger: logger}
}

// HasPermission reports whether the user holds the token through any
// active role. Unknown users simply have no permissions; this never
// fails for a valid-but-unknown user.
func (s *Service) HasPermission(ctx context.Context, userID int64, token string) (bool, error) {
	tokens, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, t := range tokens {
		if t == token {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns the sorted union of permission tokens over
// the user's active roles.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.cache.FetchPermissions(ctx, userID, func(ctx context.Context) ([]string, error) {
		return s.repo.UserPermissions(ctx, userID)
	})
}

// CreateRole registers a new role with a validated permission set.
func (s *Service) CreateRole(ctx context.Context, actorID int64, name, code, description string, permissions []string) (Role, error) {
	name = NormalizeName(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: name required", ErrInvalidName)
	}
	code = NormalizeName(code)
	if !ValidCode(code) {
		return Role{}, fmt.Errorf("%w: code %q", ErrInvalidName, code)
	}
	set, err := NewPermissionSet(permissions...)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, name, code, description, set.Tokens())
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.create", role.ID, map[string]any{"code": role.Code, "name": role.Name})
	return role, nil
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListUserRoles returns the user's assigned roles, active or not.
func (s *Service) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.ListUserRoles(ctx, userID)
}

// UpdateRolePermissions atomically replaces the role's permission set.
func (s *Service) UpdateRolePermissions(ctx context.Context, actorID, roleID int64, permissions []string) error {
	set, err := NewPermissionSet(permissions...)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateRolePermissions(ctx, roleID, set.Tokens()); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "role.permissions.update", roleID, map[string]any{"count": len(set)})
	return nil
}

// DeactivateRole excludes the role from permission resolution while
// keeping its assignments, unlike DeleteRole which cascades them away.
func (s *Service) DeactivateRole(ctx context.Context, actorID, roleID int64) error {
	return s.setActive(ctx, actorID, roleID, false)
}

// ActivateRole re-enables a deactivated role; retained assignments grant
// again immediately.
func (s *Service) ActivateRole(ctx context.Context, actorID, roleID int64) error {
	return s.setActive(ctx, actorID, roleID, true)
}

func (s *Service) setActive(ctx context.Context, actorID, roleID int64, active bool) error {
	if err := s.repo.SetRoleActive(ctx, roleID, active); err != nil {
		return err
	}
	s.invalidate(ctx)
	action := "role.deactivate"
	if active {
		action = "role.activate"
	}
	s.record(ctx, actorID, action, roleID, nil)
	return nil
}

// DeleteRole permanently removes the role and, atomically with it, every
// assignment referencing it.
func (s *Service) DeleteRole(ctx context.Context, actorID, roleID int64) error {
	if err := s.repo.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "role.delete", roleID, nil)
	return nil
}

// AssignRole grants the role to the user. Granting twice reports
// ErrAlreadyAssigned and leaves a single assignment row.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "role.assign", roleID, map[string]any{"user_id": userID})
	return nil
}

// RevokeRole removes the grant, reporting ErrNotAssigned when absent.
func (s *Service) RevokeRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "role.revoke", roleID, map[string]any{"user_id": userID})
	return nil
}

// EnsureBaselineRoles idempotently creates the three baseline roles.
// Existing roles are left untouched so administrative edits survive
// restarts.
func (s *Service) EnsureBaselineRoles(ctx context.Context) error {
	baseline := []struct {
		code        string
		name        string
		description string
		permissions []string
	}{
		{CodeSuperAdmin, "Super Administrator", "Full access to every resource and action.", SuperAdminPermissions()},
		{CodeOrganizer, "Organizer", "Manages activities and enrollment workflows.", OrganizerPermissions()},
		{CodeNormalUser, "Member", "Self-service access to activities and own enrollments.", NormalUserPermissions()},
	}
	for _, b := range baseline {
		_, err := s.repo.GetRoleByCode(ctx, b.code)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRoleNotFound) {
			return err
		}
		if _, err := s.CreateRole(ctx, 0, b.name, b.code, b.description, b.permissions); err != nil {
			// Lost a create race with another instance.
			if errors.Is(err, ErrDuplicateCode) || errors.Is(err, ErrDuplicateName) {
				continue
			}
			return err
		}
	}
	return nil
}

// WarmPermissions pre-populates the cache for users holding assignments.
func (s *Service) WarmPermissions(ctx context.Context, limit, concurrency int) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	ids, err := s.repo.AssignedUserIDs(ctx, limit)
	if err != nil {
		return 0, err
	}
	g, gctx := errgroup.WithContext(ctx)
	if concurrency <= 0 {
		concurrency = 4
	}
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.EffectivePermissions(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("bump permission cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("record audit entry", slog.String("action", action), slog.Any("error", err))
	}
}
