package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

func TestLoginIssuesTokensCarryingRoleAndTenant(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleAdmin, "tenant-1")

	result, err := f.auth.Login(context.Background(), LoginInput{Email: "Owner@Lakeside.example ", Password: testPassword, ClientMeta: ClientMeta{IPAddress: "203.0.113.7"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Step != domain.LoginStepAuthenticated || result.Tokens == nil {
		t.Fatalf("unexpected result: %+v", result)
	}

	claims, err := f.tokens.VerifyAccess(result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.Subject != "account-1" || claims.Role != domain.RoleAdmin || claims.TenantID != "tenant-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if f.metrics.logins[outcomeSuccess] != 1 {
		t.Fatalf("expected success metric, got %v", f.metrics.logins)
	}
	if len(f.events.logins) != 1 || !f.events.logins[0].Succeeded {
		t.Fatalf("expected one successful login event, got %+v", f.events.logins)
	}
	account, _ := f.accounts.GetByID(context.Background(), "account-1")
	if account.LastLoginAt == nil {
		t.Fatalf("expected last login to be mirrored")
	}
}

func TestLoginDoesNotRevealUnknownEmail(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")

	_, unknownErr := f.auth.Login(context.Background(), LoginInput{Email: "ghost@lakeside.example", Password: testPassword})
	_, wrongErr := f.auth.Login(context.Background(), LoginInput{Email: "owner@lakeside.example", Password: "wrong-password"})

	if !errors.Is(unknownErr, domain.ErrInvalidCredentials) || !errors.Is(wrongErr, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for both, got %v and %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("errors must be indistinguishable: %q vs %q", unknownErr, wrongErr)
	}
}

func TestLoginLocksAfterMaxFailuresAndRecovers(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	ctx := context.Background()

	for i := 0; i < testLockoutPolicy.MaxFailures; i++ {
		_, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: "wrong-password"})
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	_, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword})
	var locked *domain.AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected account locked even with correct password, got %v", err)
	}
	if locked.RetryAfter <= 0 {
		t.Fatalf("expected positive retry after, got %s", locked.RetryAfter)
	}
	if len(f.events.locked) != 1 || f.events.locked[0].Scope != ThrottleScopeAccount {
		t.Fatalf("expected one account lock event, got %+v", f.events.locked)
	}
	if f.metrics.lockouts[ThrottleScopeAccount] != 1 {
		t.Fatalf("expected lockout metric, got %v", f.metrics.lockouts)
	}
	account, _ := f.accounts.GetByID(ctx, "account-1")
	if account.LockedUntil == nil || account.FailedLoginCount != testLockoutPolicy.MaxFailures {
		t.Fatalf("expected lock mirrored onto account, got %+v", account)
	}

	f.clock.Advance(testLockoutPolicy.BaseDuration + time.Second)

	if _, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword}); err != nil {
		t.Fatalf("expected login after lock expiry, got %v", err)
	}
	window, err := f.throttle.store.Get(ctx, LoginIdentity("owner@lakeside.example"), f.clock.Now())
	if err != nil {
		t.Fatalf("get window: %v", err)
	}
	if window.Count != 0 || window.Lockouts != 0 {
		t.Fatalf("expected cleared window, got %+v", window)
	}
}

func TestLoginSuccessResetsFailureCount(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	ctx := context.Background()

	for i := 0; i < testLockoutPolicy.MaxFailures-1; i++ {
		_, _ = f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: "wrong-password"})
	}
	if _, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword}); err != nil {
		t.Fatalf("login: %v", err)
	}
	for i := 0; i < testLockoutPolicy.MaxFailures-1; i++ {
		_, _ = f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: "wrong-password"})
	}
	if _, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword}); err != nil {
		t.Fatalf("expected counter reset by earlier success, got %v", err)
	}
}

func TestLoginRequiresVerifiedEmailAfterPassword(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	account := f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	account.EmailVerifiedAt = nil
	f.accounts.put(account)
	ctx := context.Background()

	if _, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: "wrong-password"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials before password is proven, got %v", err)
	}
	if _, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword}); !errors.Is(err, domain.ErrEmailNotVerified) {
		t.Fatalf("expected email not verified, got %v", err)
	}
}

func TestLoginWithTwoFactor(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	ctx := context.Background()
	secret := enableTwoFactor(t, f, "account-1")

	result, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Step != domain.LoginStepTwoFactorRequired || result.Tokens != nil {
		t.Fatalf("expected two factor step without tokens, got %+v", result)
	}

	if _, err := f.auth.VerifyTwoFactor(ctx, LoginInput{Email: "owner@lakeside.example", Password: "wrong-password", TwoFactorCode: "123456"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected password to be checked before the code, got %v", err)
	}

	f.clock.Advance(time.Minute)
	code, err := f.totp.Code(secret, f.clock.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	completed, err := f.auth.VerifyTwoFactor(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword, TwoFactorCode: code})
	if err != nil {
		t.Fatalf("verify two factor: %v", err)
	}
	if completed.Step != domain.LoginStepAuthenticated || completed.Tokens == nil {
		t.Fatalf("expected tokens, got %+v", completed)
	}

	if _, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword, TwoFactorCode: code}); !errors.Is(err, domain.ErrTwoFactorInvalid) {
		t.Fatalf("expected replayed code to fail, got %v", err)
	}
}

func TestVerifyTwoFactorWithoutCode(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	enableTwoFactor(t, f, "account-1")

	_, err := f.auth.VerifyTwoFactor(context.Background(), LoginInput{Email: "owner@lakeside.example", Password: testPassword})
	if !errors.Is(err, domain.ErrTwoFactorRequired) {
		t.Fatalf("expected two factor required, got %v", err)
	}
}

func TestWrongTwoFactorCodesCountAsFailures(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	enableTwoFactor(t, f, "account-1")
	ctx := context.Background()

	for i := 0; i < testLockoutPolicy.MaxFailures; i++ {
		_, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword, TwoFactorCode: "000000"})
		if !errors.Is(err, domain.ErrTwoFactorInvalid) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i+1, err)
		}
	}
	if _, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword}); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected lock after repeated bad codes, got %v", err)
	}
}

func TestRefreshReplayRaisesAlert(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	ctx := context.Background()

	login, err := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := f.auth.Refresh(ctx, login.Tokens.RefreshToken, ClientMeta{IPAddress: "198.51.100.4"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := f.auth.Refresh(ctx, login.Tokens.RefreshToken, ClientMeta{IPAddress: "192.0.2.9"}); !errors.Is(err, domain.ErrTokenReuseDetected) {
		t.Fatalf("expected reuse detection, got %v", err)
	}
	if len(f.alerter.alerts) != 1 || f.alerter.alerts[0].FamilyID != login.Tokens.FamilyID {
		t.Fatalf("expected one alert for the family, got %+v", f.alerter.alerts)
	}
	if len(f.events.reuse) != 1 || f.events.reuse[0].IPAddress != "192.0.2.9" {
		t.Fatalf("expected reuse event with replaying client, got %+v", f.events.reuse)
	}

	if _, err := f.auth.Refresh(ctx, second.RefreshToken, ClientMeta{}); !errors.Is(err, domain.ErrTokenReuseDetected) {
		t.Fatalf("expected descendant to fail, got %v", err)
	}
	if len(f.alerter.alerts) != 1 {
		t.Fatalf("descendant of revoked family must not alert again, got %d alerts", len(f.alerter.alerts))
	}
	if _, err := f.auth.Authenticate(ctx, second.AccessToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected access token of revoked family to fail, got %v", err)
	}
	if f.metrics.refresh[outcomeReuse] != 1 || f.metrics.refresh[outcomeRevoked] != 1 {
		t.Fatalf("unexpected refresh metrics %v", f.metrics.refresh)
	}
}

func TestLogoutRevokesOnlyOwnFamily(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	f.seedAccount(t, "account-2", "staff@lakeside.example", domain.RoleStaff, "tenant-1")
	ctx := context.Background()

	mine, _ := f.auth.Login(ctx, LoginInput{Email: "owner@lakeside.example", Password: testPassword})
	other, _ := f.auth.Login(ctx, LoginInput{Email: "staff@lakeside.example", Password: testPassword})
	me, err := f.auth.Authenticate(ctx, mine.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if err := f.auth.Logout(ctx, me, other.Tokens.RefreshToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected foreign token to be rejected, got %v", err)
	}
	if err := f.auth.Logout(ctx, me, mine.Tokens.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.auth.Refresh(ctx, mine.Tokens.RefreshToken, ClientMeta{}); !errors.Is(err, domain.ErrTokenReuseDetected) {
		t.Fatalf("expected logged out token to fail, got %v", err)
	}
	if len(f.alerter.alerts) != 0 {
		t.Fatalf("logout must not look like theft, got %d alerts", len(f.alerter.alerts))
	}
	if _, err := f.auth.Refresh(ctx, other.Tokens.RefreshToken, ClientMeta{}); err != nil {
		t.Fatalf("other account session must survive, got %v", err)
	}
}

func TestRevokeAccountSessionsAuthorization(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict))
	f.seedAccount(t, "owner-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	f.seedAccount(t, "staff-1", "staff@lakeside.example", domain.RoleStaff, "tenant-1")
	f.seedAccount(t, "staff-2", "staff@harbour.example", domain.RoleStaff, "tenant-2")
	ctx := context.Background()

	staffLogin, _ := f.auth.Login(ctx, LoginInput{Email: "staff@lakeside.example", Password: testPassword})

	cases := []struct {
		name     string
		actor    domain.Principal
		tenantID string
		target   string
		wantErr  error
	}{
		{name: "staff lacks permission", actor: domain.Principal{AccountID: "staff-1", TenantID: "tenant-1", Role: domain.RoleStaff}, tenantID: "tenant-1", target: "owner-1", wantErr: domain.ErrPermissionDenied},
		{name: "admin cannot outrank owner", actor: domain.Principal{AccountID: "admin-1", TenantID: "tenant-1", Role: domain.RoleAdmin}, tenantID: "tenant-1", target: "owner-1", wantErr: domain.ErrPermissionDenied},
		{name: "cross tenant path", actor: domain.Principal{AccountID: "owner-1", TenantID: "tenant-1", Role: domain.RoleOwner}, tenantID: "tenant-2", target: "staff-2", wantErr: domain.ErrTenantMismatch},
		{name: "target in other tenant", actor: domain.Principal{AccountID: "owner-1", TenantID: "tenant-1", Role: domain.RoleOwner}, tenantID: "tenant-1", target: "staff-2", wantErr: domain.ErrTenantMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.auth.RevokeAccountSessions(ctx, tc.actor, tc.tenantID, tc.target, ""); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	owner := domain.Principal{AccountID: "owner-1", TenantID: "tenant-1", Role: domain.RoleOwner}
	families, err := f.auth.RevokeAccountSessions(ctx, owner, "tenant-1", "staff-1", "offboarding")
	if err != nil {
		t.Fatalf("revoke sessions: %v", err)
	}
	if families != 1 {
		t.Fatalf("expected one family revoked, got %d", families)
	}
	if _, err := f.auth.Authenticate(ctx, staffLogin.Tokens.AccessToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected staff access token to fail, got %v", err)
	}
	last := f.events.revoked[len(f.events.revoked)-1]
	if last.Reason != "offboarding" || last.RevokedBy != "owner-1" {
		t.Fatalf("unexpected revocation event %+v", last)
	}
}

func TestLoginFailsClosedWhenThrottleUnavailable(t *testing.T) {
	f := newAuthFixture(t, domain.NewDegradationPolicy(domain.DegradationPolicyModeLenient))
	f.seedAccount(t, "account-1", "owner@lakeside.example", domain.RoleOwner, "tenant-1")
	f.redis.SetError("ERR redis is unavailable")

	_, err := f.auth.Login(context.Background(), LoginInput{Email: "owner@lakeside.example", Password: testPassword})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("store failure must not look like bad credentials")
	}
}

// enableTwoFactor enrolls accountID and returns its TOTP secret.
func enableTwoFactor(t *testing.T, f *authFixture, accountID string) string {
	t.Helper()
	ctx := context.Background()

	enrollment, err := f.twoFactor.Enroll(ctx, accountID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	code, err := f.totp.Code(enrollment.Secret, f.clock.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if err := f.twoFactor.ConfirmEnrollment(ctx, accountID, enrollment.Secret, code); err != nil {
		t.Fatalf("confirm enrollment: %v", err)
	}
	return enrollment.Secret
}
