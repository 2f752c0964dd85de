// Package rbac is a permission-catalog supplement alongside the engine's
// assignee/role authorization model: it lets an admin surface define named
// roles and the permission keys they grant, for boundary-layer checks like
// "can this role call the create-request endpoint at all". It is
// orthogonal to TaskActions.CanAct, which decides who may act on a
// specific task and never consults this catalog. Grounded on
// original_source's rbac.py.
package rbac

import (
	"context"
	"sort"

	"github.com/c360studio/oaengine/internal/store"
)

// defaultUserPermissions mirrors original_source's _DEFAULT_USER_PERMISSIONS.
var defaultUserPermissions = []string{
	"requests:create",
	"requests:read_own",
	"inbox:read",
	"notifications:read",
	"attachments:upload_own",
	"attachments:download_own",
}

// RBAC administers the role/permission catalog.
type RBAC struct {
	store *store.Store
}

// New builds an RBAC over the given store.
func New(s *store.Store) *RBAC {
	return &RBAC{store: s}
}

// EnsureDefaults registers the built-in "admin" and "user" roles if they
// do not already exist, seeding "user" with the default permission set.
// "admin" is left with no permission rows: admin authority flows from
// User.Role == "admin" checks elsewhere in the engine, not from this
// catalog.
func (r *RBAC) EnsureDefaults(ctx context.Context) error {
	lock := r.store.RolesLock()
	lock.Lock()
	defer lock.Unlock()

	if err := r.store.UpsertRole(ctx, "admin"); err != nil {
		return err
	}
	if err := r.store.UpsertRole(ctx, "user"); err != nil {
		return err
	}

	existing, err := r.store.ListRolePermissions(ctx, "user")
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return r.store.ReplaceRolePermissions(ctx, "user", defaultUserPermissions)
	}
	return nil
}

// UpsertRole registers a role if it does not already exist.
func (r *RBAC) UpsertRole(ctx context.Context, roleName string) error {
	return r.store.UpsertRole(ctx, roleName)
}

// ReplaceRolePermissions overwrites a role's granted permission set.
func (r *RBAC) ReplaceRolePermissions(ctx context.Context, roleName string, permissions []string) error {
	return r.store.ReplaceRolePermissions(ctx, roleName, permissions)
}

// ListRoles returns every registered role name, ascending.
func (r *RBAC) ListRoles(ctx context.Context) ([]string, error) {
	return r.store.ListRoles(ctx)
}

// ListRolePermissions returns a role's granted permission keys, ascending.
func (r *RBAC) ListRolePermissions(ctx context.Context, roleName string) ([]string, error) {
	perms, err := r.store.ListRolePermissions(ctx, roleName)
	if err != nil {
		return nil, err
	}
	sort.Strings(perms)
	return perms, nil
}

// RoleExists reports whether roleName has been registered.
func (r *RBAC) RoleExists(ctx context.Context, roleName string) (bool, error) {
	return r.store.RoleExists(ctx, roleName)
}

// HasPermission reports whether roleName grants permissionKey.
func (r *RBAC) HasPermission(ctx context.Context, roleName, permissionKey string) (bool, error) {
	return r.store.RoleHasPermission(ctx, roleName, permissionKey)
}
