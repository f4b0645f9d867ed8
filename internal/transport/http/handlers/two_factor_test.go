package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

func newTwoFactorEngine(svc *fakeTwoFactorService) *gin.Engine {
	engine := newTestEngine()
	group := engine.Group("/auth/2fa", injectPrincipal(testPrincipal))
	NewTwoFactorHandler(svc).RegisterRoutes(group, nil)
	return engine
}

func TestTwoFactorSetup(t *testing.T) {
	svc := &fakeTwoFactorService{enrollment: &domain.TwoFactorEnrollment{
		Secret:          "JBSWY3DPEHPK3PXP",
		ProvisioningURI: "otpauth://totp/Marketplace:owner@vendor.test?secret=JBSWY3DPEHPK3PXP",
		QRCode:          "data:image/png;base64,AAAA",
		BackupCodes:     []string{"AAAA-BBBB", "CCCC-DDDD"},
		ExpiresAt:       time.Now().Add(10 * time.Minute),
	}}

	rr := doJSON(t, newTwoFactorEngine(svc), http.MethodPost, "/auth/2fa/setup", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("setup response must not be cached")
	}

	var resp TwoFactorSetupResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Secret != "JBSWY3DPEHPK3PXP" || len(resp.BackupCodes) != 2 || resp.QRCode == "" {
		t.Fatalf("unexpected setup response %+v", resp)
	}
}

func TestTwoFactorSetupAlreadyEnabled(t *testing.T) {
	rr := doJSON(t, newTwoFactorEngine(&fakeTwoFactorService{err: domain.ErrTwoFactorAlreadyEnabled}), http.MethodPost, "/auth/2fa/setup", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestTwoFactorEnable(t *testing.T) {
	svc := &fakeTwoFactorService{}
	rr := doJSON(t, newTwoFactorEngine(svc), http.MethodPost, "/auth/2fa/enable", TwoFactorEnableRequest{Secret: "SECRET", Code: " 123456 "})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.secret != "SECRET" || svc.code != "123456" {
		t.Fatalf("unexpected confirm call secret=%q code=%q", svc.secret, svc.code)
	}

	rr = doJSON(t, newTwoFactorEngine(&fakeTwoFactorService{err: domain.ErrTwoFactorInvalid}), http.MethodPost, "/auth/2fa/enable", TwoFactorEnableRequest{Secret: "SECRET", Code: "000000"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestTwoFactorDisableRequiresPassword(t *testing.T) {
	svc := &fakeTwoFactorService{}
	rr := doJSON(t, newTwoFactorEngine(svc), http.MethodPost, "/auth/2fa/disable", map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = doJSON(t, newTwoFactorEngine(svc), http.MethodPost, "/auth/2fa/disable", PasswordConfirmationRequest{Password: "pw"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.password != "pw" {
		t.Fatalf("unexpected password %q", svc.password)
	}

	rr = doJSON(t, newTwoFactorEngine(&fakeTwoFactorService{err: domain.ErrTwoFactorNotEnabled}), http.MethodPost, "/auth/2fa/disable", PasswordConfirmationRequest{Password: "pw"})
	if body := decodeError(t, rr); body.Code != "two_factor_not_enabled" {
		t.Fatalf("unexpected code %s", body.Code)
	}
}

func TestBackupCodes(t *testing.T) {
	svc := &fakeTwoFactorService{codes: []string{"1111-2222"}, remaining: 7}
	engine := newTwoFactorEngine(svc)

	rr := doJSON(t, engine, http.MethodPost, "/auth/2fa/backup-codes", PasswordConfirmationRequest{Password: "pw"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var codes BackupCodesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &codes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(codes.BackupCodes) != 1 {
		t.Fatalf("unexpected codes %+v", codes)
	}

	rr = doJSON(t, engine, http.MethodGet, "/auth/2fa/backup-codes", nil)
	var status BackupCodesStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Remaining != 7 {
		t.Fatalf("expected 7 remaining, got %d", status.Remaining)
	}
}

func TestTwoFactorWithoutPrincipal(t *testing.T) {
	engine := newTestEngine()
	NewTwoFactorHandler(&fakeTwoFactorService{}).RegisterRoutes(engine.Group("/auth/2fa"), nil)

	rr := doJSON(t, engine, http.MethodPost, "/auth/2fa/setup", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
