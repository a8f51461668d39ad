package merco

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/SametHaymana/merco-api/credential"
	"github.com/SametHaymana/merco-api/internal"
	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/internal/ids"
	"github.com/SametHaymana/merco-api/internal/rate"
	"github.com/SametHaymana/merco-api/notify"
	"github.com/SametHaymana/merco-api/password"
	"github.com/SametHaymana/merco-api/storage"
)

// SendOTP mints a numeric code for identifier and delivers it over channel.
//
// The code is persisted before delivery; a delivery failure returns
// ErrDelivery and leaves the code redeemable until it expires.
func (e *Engine) SendOTP(ctx context.Context, tenantID string, channel Channel, identifier string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if tenantID == "" {
		return invalidInput(errors.New("tenant is required"))
	}
	identifier, err := normalizeIdentifier(channel, identifier)
	if err != nil {
		return err
	}
	if err := e.allowSend(ctx, "otp", tenantID+":"+identifier); err != nil {
		return err
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return e.internal(ctx, "otp.generate", err)
	}
	if err := e.putToken(ctx, tenantID, storage.TokenOTP, identifier, code, e.config.OTP.TTL); err != nil {
		return err
	}

	msg := notify.Message{
		Channel:  channel,
		To:       identifier,
		Subject:  "Your verification code",
		Body:     fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(e.config.OTP.TTL.Minutes())),
		Purpose:  notify.PurposeOTP,
		TenantID: tenantID,
	}
	err = e.deliver(ctx, msg)
	e.metricInc(MetricOTPSent)
	e.emitAudit(ctx, audit.TypeOTPSent, tenantID, "", "", err, func() map[string]string {
		return map[string]string{"channel": string(channel)}
	})
	return err
}

// VerifyOTP redeems a code sent to identifier and opens a session for the
// matching principal, creating it on first use.
func (e *Engine) VerifyOTP(ctx context.Context, tenantID, identifier, code string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	channel := ChannelEmail
	if password.IsPhone(identifier) {
		channel = ChannelSMS
	}
	identifier, err := normalizeIdentifier(channel, identifier)
	if err != nil {
		return nil, err
	}
	if err := e.allowVerify(ctx, "otp_verify", tenantID, tenantID+":"+identifier); err != nil {
		return nil, err
	}

	if _, err := e.verifier.VerifySingleUseToken(ctx, tenantID, storage.TokenOTP, identifier, code); err != nil {
		if errors.Is(err, credential.ErrInvalidToken) {
			e.metricInc(MetricOTPFailure)
			e.emitAudit(ctx, audit.TypeOTPVerified, tenantID, "", "", ErrOTPInvalid, nil)
			return nil, ErrOTPInvalid
		}
		return nil, e.internal(ctx, "otp.consume", err)
	}

	u, err := e.verifiedPrincipal(ctx, tenantID, channel, identifier)
	if err != nil {
		return nil, err
	}
	res, err := e.startSession(ctx, u)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricOTPVerified)
	e.emitAudit(ctx, audit.TypeOTPVerified, tenantID, u.ID, res.SessionID, nil, nil)
	return res, nil
}

// SendMagicLink mints an ml_ token for email and mails a sign-in link.
func (e *Engine) SendMagicLink(ctx context.Context, tenantID, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if tenantID == "" {
		return invalidInput(errors.New("tenant is required"))
	}
	email, err := normalizeIdentifier(ChannelEmail, email)
	if err != nil {
		return err
	}
	if err := e.allowSend(ctx, "magic_link", "ml:"+tenantID+":"+email); err != nil {
		return err
	}

	raw, err := internal.NewMagicLinkToken()
	if err != nil {
		return e.internal(ctx, "magic_link.generate", err)
	}
	if err := e.putToken(ctx, tenantID, storage.TokenMagicLink, email, raw, e.config.MagicLink.TTL); err != nil {
		return err
	}

	link, err := buildLink(e.config.MagicLink.BaseURL, tenantID, raw)
	if err != nil {
		return e.internal(ctx, "magic_link.url", err)
	}
	msg := notify.Message{
		Channel:  ChannelEmail,
		To:       email,
		Subject:  "Your sign-in link",
		Body:     "Click the link below to sign in:\n\n" + link + "\n\nIf you did not request this, ignore this email.",
		Purpose:  notify.PurposeMagicLink,
		TenantID: tenantID,
	}
	err = e.deliver(ctx, msg)
	e.metricInc(MetricMagicLinkSent)
	e.emitAudit(ctx, audit.TypeMagicLinkSent, tenantID, "", "", err, nil)
	return err
}

// VerifyMagicLink redeems an ml_ token and opens a session for its email,
// creating the principal on first use.
func (e *Engine) VerifyMagicLink(ctx context.Context, tenantID, raw string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !internal.HasPrefixedShape(raw, internal.MagicLinkPrefix, internal.MagicLinkBodyLen) {
		e.metricInc(MetricMagicLinkFailure)
		return nil, ErrInvalidToken
	}

	tok, err := e.verifier.VerifySingleUseToken(ctx, tenantID, storage.TokenMagicLink, "", raw)
	if err != nil {
		if errors.Is(err, credential.ErrInvalidToken) {
			e.metricInc(MetricMagicLinkFailure)
			e.emitAudit(ctx, audit.TypeMagicLinkVerified, tenantID, "", "", ErrInvalidToken, nil)
			return nil, ErrInvalidToken
		}
		return nil, e.internal(ctx, "magic_link.consume", err)
	}

	u, err := e.verifiedPrincipal(ctx, tenantID, ChannelEmail, tok.Identifier)
	if err != nil {
		return nil, err
	}
	res, err := e.startSession(ctx, u)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricMagicLinkVerified)
	e.emitAudit(ctx, audit.TypeMagicLinkVerified, tenantID, u.ID, res.SessionID, nil, nil)
	return res, nil
}

/*
====================================
HELPERS
====================================
*/

func normalizeIdentifier(channel Channel, identifier string) (string, error) {
	switch channel {
	case ChannelEmail:
		email := password.NormalizeEmail(identifier)
		if err := password.ValidateEmail(email); err != nil {
			return "", invalidInput(err)
		}
		return email, nil
	case ChannelSMS:
		if err := password.ValidatePhone(identifier); err != nil {
			return "", invalidInput(err)
		}
		return password.NormalizePhone(identifier), nil
	default:
		return "", invalidInput(fmt.Errorf("unknown channel %q", channel))
	}
}

func (e *Engine) allowSend(ctx context.Context, scope, key string) error {
	if err := e.otpLimiter.Allow(ctx, key); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, scope, "")
			return ErrRateLimited
		}
		return e.internal(ctx, scope+".limiter", err)
	}
	return nil
}

// allowVerify spends one redemption attempt for key. Every attempt counts,
// so a code cannot be guessed faster than VerifyAttempts per VerifyWindow.
func (e *Engine) allowVerify(ctx context.Context, scope, tenantID, key string) error {
	if err := e.verifyLimiter.Allow(ctx, key); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, scope, tenantID)
			return ErrRateLimited
		}
		return e.internal(ctx, scope+".limiter", err)
	}
	return nil
}

// putToken persists the hash of secret; the raw secret never reaches the store.
func (e *Engine) putToken(ctx context.Context, tenantID string, kind storage.TokenKind, identifier, secret string, ttl time.Duration) error {
	now := e.now()
	t := &storage.VerificationToken{
		ID:         ids.At(now),
		TenantID:   tenantID,
		Kind:       kind,
		Identifier: identifier,
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	if err := e.tokens.PutToken(ctx, t); err != nil {
		return e.internal(ctx, "token.put", err)
	}
	return nil
}

// deliver hands msg to the sender once. Failures are logged and reported as ErrDelivery.
func (e *Engine) deliver(ctx context.Context, msg notify.Message) error {
	if err := e.sender.Send(ctx, msg); err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.logger.WarnContext(ctx, "notification delivery failed",
			"channel", msg.Channel, "purpose", msg.Purpose, "tenant_id", msg.TenantID, "error", err)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// verifiedPrincipal finds the user behind a verified identifier or creates one,
// and marks the channel verified.
func (e *Engine) verifiedPrincipal(ctx context.Context, tenantID string, channel Channel, identifier string) (*storage.User, error) {
	return e.resolveVerified(ctx, tenantID, channel, identifier, false)
}

// resolveVerified retries the lookup once when a concurrent first sign-in
// created the same principal.
func (e *Engine) resolveVerified(ctx context.Context, tenantID string, channel Channel, identifier string, retried bool) (*storage.User, error) {
	var (
		u   *storage.User
		err error
	)
	if channel == ChannelSMS {
		u, err = e.users.UserByPhone(ctx, tenantID, identifier)
	} else {
		u, err = e.users.UserByEmail(ctx, tenantID, identifier)
	}

	now := e.now()
	switch {
	case err == nil:
		if u.Banned {
			return nil, ErrForbidden
		}
		changed := false
		if channel == ChannelSMS && !u.PhoneVerified {
			u.PhoneVerified, changed = true, true
		}
		if channel == ChannelEmail && !u.EmailVerified {
			u.EmailVerified, changed = true, true
		}
		if changed {
			u.UpdatedAt = now
			if err := e.users.UpdateUser(ctx, u); err != nil {
				return nil, e.internal(ctx, "user.verify", err)
			}
		}
		e.touchLastSignIn(ctx, u)
		return u, nil

	case errors.Is(err, storage.ErrNotFound):
		u = &storage.User{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			CreatedAt:    now,
			UpdatedAt:    now,
			LastSignInAt: &now,
		}
		if channel == ChannelSMS {
			u.Phone, u.PhoneVerified = identifier, true
		} else {
			u.Email, u.EmailVerified = identifier, true
		}
		if err := e.users.CreateUser(ctx, u); err != nil {
			if errors.Is(err, storage.ErrConflict) && !retried {
				return e.resolveVerified(ctx, tenantID, channel, identifier, true)
			}
			return nil, e.internal(ctx, "user.create", err)
		}
		e.emitAudit(ctx, audit.TypeSignUp, tenantID, u.ID, "", nil, func() map[string]string {
			return map[string]string{"method": string(channel)}
		})
		return u, nil

	default:
		return nil, e.internal(ctx, "user.lookup", err)
	}
}

func buildLink(base, tenantID, raw string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", raw)
	q.Set("tenant_id", tenantID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
