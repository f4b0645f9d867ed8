package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/transport/http/middleware"
	"github.com/omairakapasha/EventAI-sub001/internal/usecase"
)

var testPrincipal = domain.Principal{
	AccountID: "account-1",
	TenantID:  "tenant-1",
	Role:      domain.RoleOwner,
	FamilyID:  "family-1",
}

type fakeAuthService struct {
	loginResult *domain.LoginResult
	pair        *domain.TokenPair
	families    int
	err         error

	lastInput     usecase.LoginInput
	lastRefresh   string
	lastPrincipal domain.Principal
	lastLogout    string
}

func (f *fakeAuthService) Login(_ context.Context, in usecase.LoginInput) (*domain.LoginResult, error) {
	f.lastInput = in
	return f.loginResult, f.err
}

func (f *fakeAuthService) VerifyTwoFactor(_ context.Context, in usecase.LoginInput) (*domain.LoginResult, error) {
	f.lastInput = in
	return f.loginResult, f.err
}

func (f *fakeAuthService) Refresh(_ context.Context, token string, _ usecase.ClientMeta) (*domain.TokenPair, error) {
	f.lastRefresh = token
	return f.pair, f.err
}

func (f *fakeAuthService) Logout(_ context.Context, principal domain.Principal, token string) error {
	f.lastPrincipal = principal
	f.lastLogout = token
	return f.err
}

func (f *fakeAuthService) LogoutAll(_ context.Context, principal domain.Principal) (int, error) {
	f.lastPrincipal = principal
	return f.families, f.err
}

func (f *fakeAuthService) RevokeAccountSessions(_ context.Context, actor domain.Principal, tenantID, accountID, _ string) (int, error) {
	f.lastPrincipal = actor
	if err := domain.Authorize(actor, domain.PermSessionRevoke, tenantID); err != nil {
		return 0, err
	}
	if accountID == "" {
		return 0, domain.ErrValidation
	}
	return f.families, f.err
}

type fakeAccountService struct {
	account *domain.Account
	err     error

	registered usecase.RegisterInput
	token      string
	email      string
	password   string
}

func (f *fakeAccountService) Register(_ context.Context, in usecase.RegisterInput) (*domain.Account, error) {
	f.registered = in
	return f.account, f.err
}

func (f *fakeAccountService) VerifyEmail(_ context.Context, token string) error {
	f.token = token
	return f.err
}

func (f *fakeAccountService) ResendVerification(_ context.Context, email string, _ usecase.ClientMeta) error {
	f.email = email
	return f.err
}

func (f *fakeAccountService) ForgotPassword(_ context.Context, email string, _ usecase.ClientMeta) error {
	f.email = email
	return f.err
}

func (f *fakeAccountService) ResetPassword(_ context.Context, token, password string) error {
	f.token = token
	f.password = password
	return f.err
}

func (f *fakeAccountService) GetAccount(_ context.Context, accountID string) (*domain.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	account := *f.account
	account.ID = accountID
	return &account, nil
}

type fakeTwoFactorService struct {
	enrollment *domain.TwoFactorEnrollment
	codes      []string
	remaining  int
	err        error

	secret   string
	code     string
	password string
}

func (f *fakeTwoFactorService) Enroll(context.Context, string) (*domain.TwoFactorEnrollment, error) {
	return f.enrollment, f.err
}

func (f *fakeTwoFactorService) ConfirmEnrollment(_ context.Context, _, secret, code string) error {
	f.secret, f.code = secret, code
	return f.err
}

func (f *fakeTwoFactorService) Disable(_ context.Context, _, password string) error {
	f.password = password
	return f.err
}

func (f *fakeTwoFactorService) RegenerateBackupCodes(_ context.Context, _, password string) ([]string, error) {
	f.password = password
	return f.codes, f.err
}

func (f *fakeTwoFactorService) RemainingBackupCodes(context.Context, string) (int, error) {
	return f.remaining, f.err
}

// injectPrincipal stands in for RequireAuth.
func injectPrincipal(principal domain.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetPrincipal(c, principal)
		c.Next()
	}
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.EnrichContext())
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.23:4711"
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var body middleware.ErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return body
}

func testPair() *domain.TokenPair {
	now := time.Now()
	return &domain.TokenPair{
		AccessToken:      "access-token",
		AccessExpiresAt:  now.Add(15 * time.Minute),
		RefreshToken:     "refresh-token",
		RefreshExpiresAt: now.Add(7 * 24 * time.Hour),
		FamilyID:         "family-1",
	}
}
