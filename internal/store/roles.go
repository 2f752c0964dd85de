package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/c360studio/oaengine/internal/errs"
)

// roleRecord is one role and its permission-key set, keyed by role name.
type roleRecord struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// RolesLock serializes role/permission mutations.
func (s *Store) RolesLock() *sync.Mutex { return s.locks.get("roles") }

// UpsertRole creates a role if it does not already exist, leaving its
// permission set untouched if it does.
func (s *Store) UpsertRole(ctx context.Context, name string) error {
	existing, err := s.getRole(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return s.putRole(ctx, &roleRecord{Name: name})
}

// ReplaceRolePermissions overwrites a role's permission set wholesale,
// creating the role if it does not exist.
func (s *Store) ReplaceRolePermissions(ctx context.Context, name string, permissions []string) error {
	sorted := append([]string(nil), permissions...)
	sort.Strings(sorted)
	return s.putRole(ctx, &roleRecord{Name: name, Permissions: sorted})
}

// ListRoles returns every known role name, ascending.
func (s *Store) ListRoles(ctx context.Context) ([]string, error) {
	keys, err := s.roles.Keys(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errs.Storage("roles_list_failed", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListRolePermissions returns a role's permission keys, ascending. Returns
// nil (no error) if the role does not exist.
func (s *Store) ListRolePermissions(ctx context.Context, name string) ([]string, error) {
	r, err := s.getRole(ctx, name)
	if err != nil || r == nil {
		return nil, err
	}
	return r.Permissions, nil
}

// RoleExists reports whether a role has been registered.
func (s *Store) RoleExists(ctx context.Context, name string) (bool, error) {
	r, err := s.getRole(ctx, name)
	return r != nil, err
}

// RoleHasPermission reports whether role grants permissionKey.
func (s *Store) RoleHasPermission(ctx context.Context, name, permissionKey string) (bool, error) {
	r, err := s.getRole(ctx, name)
	if err != nil || r == nil {
		return false, err
	}
	for _, p := range r.Permissions {
		if p == permissionKey {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) getRole(ctx context.Context, name string) (*roleRecord, error) {
	entry, err := s.roles.Get(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errs.Storage("role_load_failed", err)
	}
	var r roleRecord
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, errs.Storage("role_decode_failed", err)
	}
	return &r, nil
}

func (s *Store) putRole(ctx context.Context, r *roleRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errs.Storage("role_encode_failed", err)
	}
	if _, err := s.roles.Put(ctx, r.Name, data); err != nil {
		return errs.Storage("role_store_failed", err)
	}
	return nil
}
