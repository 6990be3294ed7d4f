package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/service"
	"github.com/address-vault/internal/types"
)

// Mock services for handler tests

type mockAccessService struct {
	lastInput *service.ValidateAndFetchInput
	view      *service.AddressView
	err       error
}

func (m *mockAccessService) ValidateAndFetch(ctx context.Context, input *service.ValidateAndFetchInput) (*service.AddressView, error) {
	m.lastInput = input
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *mockAccessService) ValidateToken(ctx context.Context, token types.AccessToken) (*service.TokenValidation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.TokenValidation{Valid: true, AppName: "Shipping Inc"}, nil
}

type mockPermissionService struct {
	lastIssue *service.IssuePermissionInput
	result    *service.IssuePermissionResult
	revoked   []string
	err       error
}

func (m *mockPermissionService) IssuePermission(ctx context.Context, input *service.IssuePermissionInput) (*service.IssuePermissionResult, error) {
	m.lastIssue = input
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockPermissionService) ListPermissions(ctx context.Context, userID string) ([]*models.AddressPermission, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []*models.AddressPermission{{ID: "perm-1", UserID: userID}}, nil
}

func (m *mockPermissionService) Revoke(ctx context.Context, permissionID, userID string, reason *string) error {
	if m.err != nil {
		return m.err
	}
	m.revoked = append(m.revoked, permissionID)
	return nil
}

func (m *mockPermissionService) GetAccessHistory(ctx context.Context, permissionID, userID string, limit, offset int) (*service.AccessHistory, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.AccessHistory{Entries: []*models.AccessLogEntry{}, Total: 0}, nil
}

type mockWalletService struct {
	err error
}

func (m *mockWalletService) LinkWallet(ctx context.Context, input *service.LinkWalletInput) (*models.WalletAddress, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.WalletAddress{ID: "w1", UserID: input.UserID, Address: input.Address}, nil
}

func (m *mockWalletService) ListWallets(ctx context.Context, userID string) ([]*models.WalletAddress, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []*models.WalletAddress{}, nil
}

type mockVerificationService struct {
	lastInput *service.VerificationStatusInput
	err       error
}

func (m *mockVerificationService) GetStatus(ctx context.Context, input *service.VerificationStatusInput) (*service.VerificationStatusView, error) {
	m.lastInput = input
	if m.err != nil {
		return nil, m.err
	}
	return &service.VerificationStatusView{ID: "addr-1", UserID: "user-1"}, nil
}

type mockUsageProvider struct {
	lastFrom time.Time
	lastTo   time.Time
	summary  map[string]uint64
	err      error
}

func (m *mockUsageProvider) UsageSummary(ctx context.Context, from, to time.Time) (map[string]uint64, error) {
	m.lastFrom = from
	m.lastTo = to
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

type testFixture struct {
	server       *Server
	access       *mockAccessService
	permissions  *mockPermissionService
	wallets      *mockWalletService
	verification *mockVerificationService
	usage        *mockUsageProvider
}

func createTestServer() *testFixture {
	f := &testFixture{
		access: &mockAccessService{
			view: &service.AddressView{
				Address: map[types.AddressField]string{
					types.FieldCity:    "Springfield",
					types.FieldCountry: "US",
				},
				Permission: service.PermissionInfo{AppName: "Shipping Inc", AccessCount: 1},
			},
		},
		permissions: &mockPermissionService{
			result: &service.IssuePermissionResult{
				Permission:  &models.AddressPermission{ID: "perm-1"},
				AccessToken: "raw-token",
			},
		},
		wallets:      &mockWalletService{},
		verification: &mockVerificationService{},
		usage: &mockUsageProvider{
			summary: map[string]uint64{"app_shipping": 42},
		},
	}

	config := &ServerConfig{
		Host:             "localhost",
		Port:             "0",
		ReadTimeout:      time.Second,
		WriteTimeout:     time.Second,
		IdleTimeout:      time.Second,
		AddressRateLimit: 10000,
		RevokeRateLimit:  10000,
	}

	f.server = NewServer(config, f.access, f.permissions, f.wallets, f.verification, f.usage, nil)
	return f
}

func TestGetAddress_Success(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET", "/get-address?fields=city,country&include_verification=true", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	input := f.access.lastInput
	if input.Token.Raw() != "tok-1" {
		t.Errorf("token = %q", input.Token.Raw())
	}
	if len(input.RequestedFields) != 2 || input.RequestedFields[0] != "city" {
		t.Errorf("fields = %v", input.RequestedFields)
	}
	if !input.IncludeVerification {
		t.Error("include_verification not propagated")
	}
	if input.ClientIP != "203.0.113.9" {
		t.Errorf("client ip = %q", input.ClientIP)
	}

	// Flat response, no envelope.
	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := body["address"]; !ok {
		t.Errorf("flat response missing address: %s", w.Body.String())
	}
	if _, ok := body["success"]; ok {
		t.Error("legacy endpoint must not use the envelope")
	}
}

func TestGetAddress_PostBody(t *testing.T) {
	f := createTestServer()

	body, _ := json.Marshal(map[string]interface{}{
		"access_token": "tok-from-body",
		"fields":       []string{"city"},
	})
	req := httptest.NewRequest("POST", "/get-address", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if f.access.lastInput.Token.Raw() != "tok-from-body" {
		t.Errorf("token = %q", f.access.lastInput.Token.Raw())
	}
}

func TestGetAddress_HeaderTokenWins(t *testing.T) {
	f := createTestServer()

	body, _ := json.Marshal(map[string]interface{}{"access_token": "tok-stale"})
	req := httptest.NewRequest("POST", "/get-address", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok-header")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if f.access.lastInput.Token.Raw() != "tok-header" {
		t.Errorf("token = %q, header should win over body", f.access.lastInput.Token.Raw())
	}
}

func TestGetAddress_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{types.CodeInvalidAccessToken, http.StatusUnauthorized},
		{types.CodePermissionRevoked, http.StatusUnauthorized},
		{types.CodeTokenExpired, http.StatusUnauthorized},
		{types.CodeMaxAccessExceeded, http.StatusForbidden},
		{types.CodeAddressNotVerified, http.StatusForbidden},
		{types.CodeNoAddress, http.StatusNotFound},
		{types.CodeInvalidRequest, http.StatusBadRequest},
		{types.CodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := createTestServer()
			f.access.err = &types.ServiceError{Code: tt.code, Message: "denied"}

			req := httptest.NewRequest("GET", "/get-address", nil)
			req.Header.Set("Authorization", "Bearer tok-1")

			w := httptest.NewRecorder()
			f.server.router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET", "/validate-token", nil)
	req.Header.Set("Authorization", "Bearer tok-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var validation service.TokenValidation
	if err := json.Unmarshal(w.Body.Bytes(), &validation); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !validation.Valid || validation.AppName != "Shipping Inc" {
		t.Errorf("validation = %+v", validation)
	}
}

func TestValidateToken_FailureShape(t *testing.T) {
	tests := []struct {
		name       string
		err        *types.ServiceError
		status     int
		wantReason string
	}{
		{
			name: "revoked with reason",
			err: &types.ServiceError{
				Code:    types.CodePermissionRevoked,
				Message: "permission has been revoked",
				Details: map[string]interface{}{"reason": "user_initiated"},
			},
			status:     http.StatusUnauthorized,
			wantReason: "user_initiated",
		},
		{
			name:   "expired",
			err:    &types.ServiceError{Code: types.CodeTokenExpired, Message: "access token has expired"},
			status: http.StatusUnauthorized,
		},
		{
			name:   "quota exhausted",
			err:    &types.ServiceError{Code: types.CodeMaxAccessExceeded, Message: "maximum access count exceeded"},
			status: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := createTestServer()
			f.access.err = tt.err

			req := httptest.NewRequest("GET", "/validate-token", nil)
			req.Header.Set("Authorization", "Bearer tok-1")

			w := httptest.NewRecorder()
			f.server.router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}

			// Clients key off the valid flag, so it must be present and
			// false on every token-check failure.
			var body map[string]json.RawMessage
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			raw, ok := body["valid"]
			if !ok {
				t.Fatalf("failure body missing valid: %s", w.Body.String())
			}
			if string(raw) != "false" {
				t.Errorf("valid = %s, want false", raw)
			}

			var failure tokenCheckFailure
			if err := json.Unmarshal(w.Body.Bytes(), &failure); err != nil {
				t.Fatalf("unmarshal failure: %v", err)
			}
			if failure.Error.Code != tt.err.Code {
				t.Errorf("error code = %q, want %q", failure.Error.Code, tt.err.Code)
			}
			if failure.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", failure.Reason, tt.wantReason)
			}
		})
	}
}

func TestAPIAddress_RequiresAppID(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET", "/api/address", nil)
	req.Header.Set("Authorization", "Bearer tok-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without X-App-ID", w.Code)
	}

	var envelope Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Success {
		t.Error("envelope success should be false")
	}
	if envelope.Error == nil || envelope.Error.Code != types.CodeInvalidRequest {
		t.Errorf("envelope error = %+v", envelope.Error)
	}
}

func TestAPIAddress_Enveloped(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET", "/api/address", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Header.Set("X-App-ID", "app_abc")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var envelope Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !envelope.Success || envelope.Data == nil {
		t.Errorf("envelope = %+v", envelope)
	}
	if envelope.Meta.Version != "v1" || envelope.Meta.RequestID == "" {
		t.Errorf("meta = %+v", envelope.Meta)
	}
}

func TestIssuePermission_RequiresIdentity(t *testing.T) {
	f := createTestServer()

	body, _ := json.Marshal(map[string]interface{}{"app_name": "App"})
	req := httptest.NewRequest("POST", "/api/permissions", bytes.NewReader(body))

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without X-User-ID", w.Code)
	}
}

func TestIssuePermission_Defaults(t *testing.T) {
	f := createTestServer()

	body, _ := json.Marshal(map[string]interface{}{
		"app_name": "App",
		"user_id":  "spoofed-user",
	})
	req := httptest.NewRequest("POST", "/api/permissions", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	if f.permissions.lastIssue.UserID != "user-1" {
		t.Errorf("user id = %q, header must override body", f.permissions.lastIssue.UserID)
	}
	if f.permissions.lastIssue.ExpiryDays != defaultExpiryDays {
		t.Errorf("expiry days = %d, want default %d", f.permissions.lastIssue.ExpiryDays, defaultExpiryDays)
	}
}

func TestIssuePermission_InvalidJSON(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("POST", "/api/permissions", bytes.NewReader([]byte("not json")))
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRevokePermission(t *testing.T) {
	f := createTestServer()

	body, _ := json.Marshal(map[string]interface{}{"reason": "no longer needed"})
	req := httptest.NewRequest("POST", "/api/permissions/perm-1/revoke", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if len(f.permissions.revoked) != 1 || f.permissions.revoked[0] != "perm-1" {
		t.Errorf("revoked = %v", f.permissions.revoked)
	}
}

func TestRevokePermission_EmptyBody(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("POST", "/api/permissions/perm-1/revoke", nil)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("revocation without a body should succeed, got %d", w.Code)
	}
}

func TestVerificationStatus_IdentityFallback(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET", "/api/verification-status", nil)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.verification.lastInput.UserID != "user-1" {
		t.Errorf("input = %+v, want header fallback", f.verification.lastInput)
	}
}

func TestVerificationStatus_QueryWins(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET", "/api/verification-status?wallet_address=0xabc", nil)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if f.verification.lastInput.WalletAddress != "0xabc" {
		t.Errorf("wallet = %q", f.verification.lastInput.WalletAddress)
	}
	if f.verification.lastInput.UserID != "" {
		t.Errorf("user id = %q, query identifier should suppress the header fallback", f.verification.lastInput.UserID)
	}
}

func TestLinkWallet_Handler(t *testing.T) {
	f := createTestServer()

	body, _ := json.Marshal(map[string]interface{}{
		"wallet_address": "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		"message":        "challenge",
		"signature":      "0xsig",
	})
	req := httptest.NewRequest("POST", "/api/wallets/link", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	req := httptest.NewRequest("OPTIONS", "/get-address", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers on preflight")
	}
}

func TestUsageSummary(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET", "/api/analytics/usage-summary", nil)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	window := f.usage.lastTo.Sub(f.usage.lastFrom)
	if window != defaultUsageWindow {
		t.Errorf("default window = %v, want %v", window, defaultUsageWindow)
	}

	var envelope struct {
		Success bool             `json:"success"`
		Data    usageSummaryView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !envelope.Success {
		t.Error("expected enveloped success")
	}
	if envelope.Data.Summary["app_shipping"] != 42 {
		t.Errorf("summary = %v", envelope.Data.Summary)
	}
}

func TestUsageSummary_ExplicitRange(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET",
		"/api/analytics/usage-summary?from=2026-08-01T00:00:00Z&to=2026-08-02T00:00:00Z", nil)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if f.usage.lastFrom.Format(time.RFC3339) != "2026-08-01T00:00:00Z" {
		t.Errorf("from = %v", f.usage.lastFrom)
	}
	if f.usage.lastTo.Format(time.RFC3339) != "2026-08-02T00:00:00Z" {
		t.Errorf("to = %v", f.usage.lastTo)
	}
}

func TestUsageSummary_InvalidRange(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET",
		"/api/analytics/usage-summary?from=2026-08-02T00:00:00Z&to=2026-08-01T00:00:00Z", nil)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUsageSummary_AnalyticsDisabled(t *testing.T) {
	f := createTestServer()
	f.server.usageProvider = nil

	req := httptest.NewRequest("GET", "/api/analytics/usage-summary", nil)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var envelope Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Error == nil || envelope.Error.Code != types.CodeNotFound {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestUsageSummary_RequiresIdentity(t *testing.T) {
	f := createTestServer()

	req := httptest.NewRequest("GET", "/api/analytics/usage-summary", nil)
	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
