package merco

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SametHaymana/merco-api/credential"
	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/internal/rate"
	"github.com/SametHaymana/merco-api/notify"
	"github.com/SametHaymana/merco-api/password"
	"github.com/SametHaymana/merco-api/permission"
	"github.com/SametHaymana/merco-api/session"
	"github.com/SametHaymana/merco-api/storage"
	"github.com/SametHaymana/merco-api/token"
)

// Engine orchestrates credential verification, session issuance and
// authorization for every tenant.
//
// Engine methods are safe for concurrent use after Builder.Build.
type Engine struct {
	config Config

	users  storage.UserStore
	tokens storage.TokenStore
	keys   storage.APIKeyStore
	roles  storage.RoleStore

	hasher    *password.Argon2
	issuer    *token.Issuer
	sessions  *session.Manager
	verifier  *credential.Verifier
	totp      *credential.TOTP
	evaluator *permission.Evaluator

	signInLimiter  rate.Limiter
	otpLimiter     rate.Limiter
	verifyLimiter  rate.Limiter
	requestLimiter rate.Limiter

	sender  notify.Sender
	audit   *audit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RequestLimiter is the per-caller admission window used by HTTP middleware.
func (e *Engine) RequestLimiter() rate.Limiter {
	return e.requestLimiter
}

// Admit consumes one unit of the per-caller request budget for key.
func (e *Engine) Admit(ctx context.Context, key string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.requestLimiter.Allow(ctx, key); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, "request", "")
			return ErrRateLimited
		}
		return e.internal(ctx, "admit", err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// internal logs err with the operation name and collapses it to ErrInternal.
func (e *Engine) internal(ctx context.Context, op string, err error) error {
	e.logger.ErrorContext(ctx, "engine operation failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s", ErrInternal, op)
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

/*
====================================
PASSWORD SIGN-IN
====================================
*/

// SignIn authenticates email and password within a tenant and opens a session.
//
// Checks run in order and the first failure wins: attempt limiter, user
// lookup, ban, password, MFA. Unknown email and wrong password are
// indistinguishable.
func (e *Engine) SignIn(ctx context.Context, req SignInRequest) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if req.TenantID == "" {
		return nil, invalidInput(errors.New("tenant is required"))
	}
	email := password.NormalizeEmail(req.Email)

	if err := e.signInLimiter.Allow(ctx, req.TenantID+":"+email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricSignInRateLimited)
			e.emitRateLimit(ctx, "signin", req.TenantID)
			return nil, ErrRateLimited
		}
		return nil, e.internal(ctx, "signin.limiter", err)
	}

	u, err := e.verifier.VerifyPassword(ctx, req.TenantID, email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrInvalidCredentials):
			err = ErrInvalidCredentials
			e.metricInc(MetricSignInFailure)
		case errors.Is(err, credential.ErrBanned):
			err = ErrForbidden
			e.metricInc(MetricSignInBanned)
		default:
			err = e.internal(ctx, "signin.verify", err)
		}
		e.emitAudit(ctx, audit.TypeSignIn, req.TenantID, "", "", err, nil)
		return nil, err
	}

	if u.MFAEnabled {
		if err := e.checkMFA(ctx, u, req.MFACode); err != nil {
			e.emitAudit(ctx, audit.TypeSignIn, u.TenantID, u.ID, "", err, func() map[string]string {
				return map[string]string{"stage": "mfa"}
			})
			return nil, err
		}
	}

	e.touchLastSignIn(ctx, u)

	res, err := e.startSession(ctx, u)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, audit.TypeSignIn, u.TenantID, u.ID, res.SessionID, nil, func() map[string]string {
		return map[string]string{"method": "password"}
	})
	return res, nil
}

// touchLastSignIn is best effort; a failure is logged and does not fail sign-in.
// It writes only the timestamp so a concurrent backup-code spend is not undone.
func (e *Engine) touchLastSignIn(ctx context.Context, u *storage.User) {
	now := e.now()
	u.LastSignInAt = &now
	u.UpdatedAt = now
	if err := e.users.RecordSignIn(ctx, u.TenantID, u.ID, now); err != nil {
		e.logger.WarnContext(ctx, "update last sign-in failed", "user_id", u.ID, "tenant_id", u.TenantID, "error", err)
	}
}

// startSession resolves u's authorization and opens a session for it.
func (e *Engine) startSession(ctx context.Context, u *storage.User) (*AuthResult, error) {
	p, err := e.principal(ctx, u)
	if err != nil {
		return nil, err
	}
	sess, err := e.sessions.Create(ctx, p, clientMeta(ctx))
	if err != nil {
		return nil, e.internal(ctx, "session.create", err)
	}
	e.metricInc(MetricSessionCreated)
	return newAuthResult(u, sess, e.now()), nil
}

func (e *Engine) principal(ctx context.Context, u *storage.User) (session.Principal, error) {
	eff, err := e.evaluator.EffectivePermissions(ctx, u.TenantID, u.ID)
	if err != nil {
		return session.Principal{}, e.internal(ctx, "permissions.effective", err)
	}
	return session.Principal{
		UserID:      u.ID,
		TenantID:    u.TenantID,
		Roles:       eff.Roles,
		Permissions: eff.Permissions.Strings(),
	}, nil
}

// loadUser fetches a user and maps absence to ErrUserNotFound.
func (e *Engine) loadUser(ctx context.Context, tenantID, userID string) (*storage.User, error) {
	u, err := e.users.UserByID(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, e.internal(ctx, "user.load", err)
	}
	return u, nil
}

// GetUser returns the public view of a user.
func (e *Engine) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.loadUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	pu := publicUser(u)
	return &pu, nil
}

/*
====================================
TOKEN VERIFICATION
====================================
*/

// Authenticate verifies an access token's signature and expiry. It does not
// consult the session store; use AuthenticateStrict when revocation must take
// effect before the token expires.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}()

	claims, err := e.issuer.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	exp := time.Time{}
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return &Identity{
		UserID:      claims.UserID(),
		TenantID:    claims.TenantID,
		SessionID:   claims.SessionID,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		ExpiresAt:   exp,
	}, nil
}

// AuthenticateStrict is Authenticate plus a session lookup: a revoked or
// expired session rejects the token with ErrTokenExpired.
func (e *Engine) AuthenticateStrict(ctx context.Context, accessToken string) (*Identity, error) {
	id, err := e.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	sess, err := e.sessions.Get(ctx, id.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, e.internal(ctx, "session.get", err)
	}
	if sess.UserID != id.UserID || sess.TenantID != id.TenantID {
		return nil, ErrInvalidToken
	}
	if !sess.Usable(e.now()) {
		return nil, ErrTokenExpired
	}
	return id, nil
}

// Authorize checks required against the permissions embedded in id.
func (e *Engine) Authorize(ctx context.Context, id *Identity, required string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if id == nil {
		return ErrInvalidToken
	}
	want, err := permission.Parse(required)
	if err != nil {
		return invalidInput(err)
	}
	held, err := permission.ParseSet(id.Permissions)
	if err != nil {
		return ErrInvalidToken
	}
	if !held.Allows(want) {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, audit.TypePermissionDenied, id.TenantID, id.UserID, id.SessionID, ErrPermissionDenied, func() map[string]string {
			return map[string]string{"required": want.String()}
		})
		return ErrPermissionDenied
	}
	return nil
}

// APIKeyIdentity is the tenant context resolved from an API key.
type APIKeyIdentity = credential.APIKeyContext

// VerifyAPIKey resolves a raw mk_ key to its tenant.
func (e *Engine) VerifyAPIKey(ctx context.Context, raw string) (*APIKeyIdentity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	kc, err := e.verifier.VerifyAPIKey(ctx, raw)
	if err != nil {
		e.metricInc(MetricAPIKeyRejected)
		switch {
		case errors.Is(err, credential.ErrInvalidAPIKey):
			return nil, ErrInvalidAPIKey
		case errors.Is(err, credential.ErrAPIKeyExpired):
			return nil, ErrAPIKeyExpired
		default:
			return nil, e.internal(ctx, "apikey.verify", err)
		}
	}
	e.metricInc(MetricAPIKeyVerified)
	return kc, nil
}
