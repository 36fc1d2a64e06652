package spaces

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// Permission names used by the ACL layer.
const (
	PermDocumentsCreate     = "documents:create"
	PermDocumentsRead       = "documents:read"
	PermDocumentsDelete     = "documents:delete"
	PermConnectorsManage    = "connectors:manage"
	PermCommentsCreate      = "comments:create"
	PermCommentsRead        = "comments:read"
	PermCommentsDelete      = "comments:delete"
	PermPublicSharingManage = "public_sharing:manage"
	PermSpaceManage         = "space:manage"
	PermInvitesManage       = "invites:manage"
)

//go:embed permissions.yaml
var permissionsYAML []byte

type permissionCatalog struct {
	Roles map[string][]string `yaml:"roles"`
}

var (
	catalogOnce sync.Once
	catalog     permissionCatalog
	catalogErr  error
)

func loadCatalog() (permissionCatalog, error) {
	catalogOnce.Do(func() {
		catalogErr = yaml.Unmarshal(permissionsYAML, &catalog)
	})
	return catalog, catalogErr
}

// RolePermissions returns the permission set for a role. Unknown roles
// resolve to no permissions.
func RolePermissions(role string) (map[string]bool, error) {
	cat, err := loadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load permission catalog: %w", err)
	}
	out := make(map[string]bool)
	for _, p := range cat.Roles[role] {
		out[p] = true
	}
	return out, nil
}

// RoleHasPermission reports whether role carries perm. Owners bypass the
// catalog entirely at the ACL layer.
func RoleHasPermission(role, perm string) bool {
	perms, err := RolePermissions(role)
	if err != nil {
		return false
	}
	return perms[perm]
}

// KnownRole reports whether role exists in the catalog.
func KnownRole(role string) bool {
	cat, err := loadCatalog()
	if err != nil {
		return false
	}
	_, ok := cat.Roles[role]
	return ok
}
