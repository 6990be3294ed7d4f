package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/types"
)

func newPermissionFixture() (*PermissionService, *mockPermissionRepo, *mockAccessLogRepo) {
	permissionRepo := newMockPermissionRepo()
	accessLogRepo := &mockAccessLogRepo{}
	return NewPermissionService(permissionRepo, accessLogRepo, testLogger()), permissionRepo, accessLogRepo
}

func TestIssuePermission(t *testing.T) {
	svc, repo, _ := newPermissionFixture()

	max := 10
	result, err := svc.IssuePermission(context.Background(), &IssuePermissionInput{
		UserID:         "user-1",
		AppName:        "  Shipping Inc  ",
		ExpiryDays:     30,
		MaxAccessCount: &max,
	})
	if err != nil {
		t.Fatalf("IssuePermission: %v", err)
	}

	p := result.Permission
	if p.AppName != "Shipping Inc" {
		t.Errorf("app name = %q, want trimmed", p.AppName)
	}
	if p.AppID == "" {
		t.Error("app id should be generated when absent")
	}
	if p.Scope != types.DefaultScopeFlags() {
		t.Errorf("scope = %+v, want conservative defaults", p.Scope)
	}
	if p.AccessCount != 0 || p.Revoked {
		t.Errorf("fresh grant state = count %d revoked %v", p.AccessCount, p.Revoked)
	}

	// The raw secret is surfaced exactly once, in the issuance result.
	if !regexp.MustCompile(`^[0-9a-f]{48}$`).MatchString(result.AccessToken) {
		t.Errorf("token %q is not 48 hex chars", result.AccessToken)
	}

	wantExpiry := time.Now().UTC().AddDate(0, 0, 30)
	if p.AccessExpiry == nil || p.AccessExpiry.Sub(wantExpiry).Abs() > time.Minute {
		t.Errorf("expiry = %v, want ~%v", p.AccessExpiry, wantExpiry)
	}

	if _, ok := repo.permissions[p.ID]; !ok {
		t.Error("grant was not persisted")
	}
}

func TestIssuePermissionCustomScope(t *testing.T) {
	svc, _, _ := newPermissionFixture()

	scope := fullScope()
	result, err := svc.IssuePermission(context.Background(), &IssuePermissionInput{
		UserID:     "user-1",
		AppName:    "Movers LLC",
		AppID:      "app_custom",
		Scope:      &scope,
		ExpiryDays: 7,
	})
	if err != nil {
		t.Fatalf("IssuePermission: %v", err)
	}

	if result.Permission.Scope != scope {
		t.Errorf("scope = %+v", result.Permission.Scope)
	}
	if result.Permission.AppID != "app_custom" {
		t.Errorf("app id = %q", result.Permission.AppID)
	}
	if result.Permission.MaxAccessCount != nil {
		t.Error("max access count should stay unbounded when omitted")
	}
}

func TestIssuePermissionValidation(t *testing.T) {
	svc, _, _ := newPermissionFixture()
	zero := 0

	tests := []struct {
		name  string
		input IssuePermissionInput
		code  string
	}{
		{"missing user", IssuePermissionInput{AppName: "App", ExpiryDays: 30}, types.CodeUnauthorized},
		{"missing app name", IssuePermissionInput{UserID: "u", AppName: "   ", ExpiryDays: 30}, types.CodeValidationError},
		{"expiry too short", IssuePermissionInput{UserID: "u", AppName: "App", ExpiryDays: 0}, types.CodeValidationError},
		{"expiry too long", IssuePermissionInput{UserID: "u", AppName: "App", ExpiryDays: 366}, types.CodeValidationError},
		{"zero max access", IssuePermissionInput{UserID: "u", AppName: "App", ExpiryDays: 30, MaxAccessCount: &zero}, types.CodeValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IssuePermission(context.Background(), &tt.input)
			assertCode(t, err, tt.code)
		})
	}
}

func TestIssuePermissionExpiryBounds(t *testing.T) {
	svc, _, _ := newPermissionFixture()

	for _, days := range []int{MinExpiryDays, MaxExpiryDays} {
		if _, err := svc.IssuePermission(context.Background(), &IssuePermissionInput{
			UserID:     "user-1",
			AppName:    "Edge App",
			ExpiryDays: days,
		}); err != nil {
			t.Errorf("expiry of %d days should be accepted: %v", days, err)
		}
	}
}

func TestIssuePermissionTokensAreUnique(t *testing.T) {
	svc, _, _ := newPermissionFixture()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		result, err := svc.IssuePermission(context.Background(), &IssuePermissionInput{
			UserID:     "user-1",
			AppName:    "App",
			ExpiryDays: 30,
		})
		if err != nil {
			t.Fatalf("IssuePermission: %v", err)
		}
		if seen[result.AccessToken] {
			t.Fatal("duplicate access token issued")
		}
		seen[result.AccessToken] = true
	}
}

func TestRevoke(t *testing.T) {
	svc, repo, _ := newPermissionFixture()
	p := repo.add(activePermission("tok-1"))
	reason := "compromised token"

	if err := svc.Revoke(context.Background(), p.ID, "user-1", &reason); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !p.Revoked || p.RevocationReason == nil || *p.RevocationReason != reason {
		t.Errorf("grant after revoke: %+v", p)
	}

	// Revocation is idempotent and keeps the original reason.
	other := "changed my mind"
	if err := svc.Revoke(context.Background(), p.ID, "user-1", &other); err != nil {
		t.Fatalf("repeat Revoke: %v", err)
	}
	if *p.RevocationReason != reason {
		t.Errorf("reason overwritten to %q", *p.RevocationReason)
	}
}

func TestRevokeOwnership(t *testing.T) {
	svc, repo, _ := newPermissionFixture()
	p := repo.add(activePermission("tok-1"))

	// A non-owner gets not_found, indistinguishable from a missing row.
	err := svc.Revoke(context.Background(), p.ID, "someone-else", nil)
	assertCode(t, err, types.CodeNotFound)
	if p.Revoked {
		t.Error("non-owner revocation must not take effect")
	}

	err = svc.Revoke(context.Background(), "does-not-exist", "user-1", nil)
	assertCode(t, err, types.CodeNotFound)

	err = svc.Revoke(context.Background(), p.ID, "", nil)
	assertCode(t, err, types.CodeUnauthorized)
}

func TestRevokedGrantDeniesAccess(t *testing.T) {
	// Full loop: issue, use, revoke, use again.
	f := newAccessFixture()
	permissionSvc := NewPermissionService(f.permission, &mockAccessLogRepo{}, testLogger())

	result, err := permissionSvc.IssuePermission(context.Background(), &IssuePermissionInput{
		UserID:     "user-1",
		AppName:    "App",
		ExpiryDays: 30,
		Scope:      &types.ScopeFlags{ShareCity: true, ShareCountry: true},
	})
	if err != nil {
		t.Fatalf("IssuePermission: %v", err)
	}
	f.addresses.addresses["user-1"] = verifiedAddress("user-1")

	token := types.AccessToken(result.AccessToken)
	if _, err := f.service.ValidateAndFetch(context.Background(), &ValidateAndFetchInput{Token: token}); err != nil {
		t.Fatalf("access before revocation: %v", err)
	}

	if err := permissionSvc.Revoke(context.Background(), result.Permission.ID, "user-1", nil); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	_, err = f.service.ValidateAndFetch(context.Background(), &ValidateAndFetchInput{Token: token})
	assertCode(t, err, types.CodePermissionRevoked)
}

func TestListPermissions(t *testing.T) {
	svc, repo, _ := newPermissionFixture()
	repo.add(activePermission("tok-1"))
	other := activePermission("tok-2")
	other.ID = "perm-2"
	other.UserID = "user-2"
	repo.add(other)

	permissions, err := svc.ListPermissions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListPermissions: %v", err)
	}
	if len(permissions) != 1 || permissions[0].UserID != "user-1" {
		t.Errorf("permissions = %+v", permissions)
	}

	_, err = svc.ListPermissions(context.Background(), "")
	assertCode(t, err, types.CodeUnauthorized)
}

func TestGetAccessHistory(t *testing.T) {
	svc, repo, logRepo := newPermissionFixture()
	p := repo.add(activePermission("tok-1"))
	logRepo.entries = []*models.AccessLogEntry{
		{ID: "log-1", PermissionID: p.ID, AccessedFields: []types.AddressField{types.FieldCity}},
		{ID: "log-2", PermissionID: "other-perm"},
	}

	history, err := svc.GetAccessHistory(context.Background(), p.ID, "user-1", 100, 0)
	if err != nil {
		t.Fatalf("GetAccessHistory: %v", err)
	}
	if history.Total != 1 || len(history.Entries) != 1 {
		t.Errorf("history = %+v", history)
	}

	_, err = svc.GetAccessHistory(context.Background(), p.ID, "someone-else", 100, 0)
	assertCode(t, err, types.CodeNotFound)
}
