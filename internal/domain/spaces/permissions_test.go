package spaces

import "testing"

func TestRolePermissions(t *testing.T) {
	perms, err := RolePermissions("editor")
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	if !perms[PermDocumentsCreate] {
		t.Fatalf("editor should carry %s", PermDocumentsCreate)
	}
	if perms[PermSpaceManage] {
		t.Fatalf("editor should not carry %s", PermSpaceManage)
	}
}

func TestViewerIsReadOnly(t *testing.T) {
	for _, perm := range []string{PermDocumentsCreate, PermDocumentsDelete, PermConnectorsManage, PermPublicSharingManage} {
		if RoleHasPermission("viewer", perm) {
			t.Fatalf("viewer should not carry %s", perm)
		}
	}
	if !RoleHasPermission("viewer", PermDocumentsRead) {
		t.Fatalf("viewer should carry %s", PermDocumentsRead)
	}
}

func TestUnknownRoleHasNothing(t *testing.T) {
	if KnownRole("superuser") {
		t.Fatalf("superuser should be unknown")
	}
	if RoleHasPermission("superuser", PermDocumentsRead) {
		t.Fatalf("unknown role should carry no permissions")
	}
}
