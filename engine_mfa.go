package merco

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/SametHaymana/merco-api/internal"
	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/storage"
)

// EnrollTOTP generates a pending TOTP secret for the user. MFA is not
// enforced until ConfirmTOTP proves the authenticator holds the secret.
func (e *Engine) EnrollTOTP(ctx context.Context, tenantID, userID string) (*MFAEnrollment, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.loadUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, invalidInput(errors.New("mfa is already enabled"))
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, e.internal(ctx, "mfa.secret", err)
	}
	u.MFASecret = secret
	u.UpdatedAt = e.now()
	if err := e.users.UpdateUser(ctx, u); err != nil {
		return nil, e.internal(ctx, "mfa.enroll", err)
	}

	account := u.Email
	if account == "" {
		account = u.Phone
	}
	return &MFAEnrollment{Secret: secret, QRURL: e.totp.ProvisionURI(secret, account)}, nil
}

// ConfirmTOTP activates MFA when code matches the pending secret and returns
// the backup codes. They are shown once; only their hashes are kept.
func (e *Engine) ConfirmTOTP(ctx context.Context, tenantID, userID, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.loadUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, invalidInput(errors.New("mfa is already enabled"))
	}
	if u.MFASecret == "" {
		return nil, invalidInput(errors.New("mfa enrollment not started"))
	}
	if err := e.allowVerify(ctx, "mfa_verify", tenantID, mfaVerifyKey(tenantID, userID)); err != nil {
		return nil, err
	}
	ok, err := e.totp.Verify(u.MFASecret, code, e.now())
	if err != nil {
		return nil, e.internal(ctx, "mfa.verify", err)
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		return nil, ErrMFAInvalid
	}

	codes := make([]string, e.config.MFA.BackupCodeCount)
	hashes := make([]string, len(codes))
	for i := range codes {
		c, err := internal.NewBackupCode(e.config.MFA.BackupCodeLength)
		if err != nil {
			return nil, e.internal(ctx, "mfa.backup_codes", err)
		}
		codes[i] = c
		hashes[i] = internal.HashSecret(c)
	}

	u.MFAEnabled = true
	u.BackupCodes = hashes
	u.UpdatedAt = e.now()
	if err := e.users.UpdateUser(ctx, u); err != nil {
		return nil, e.internal(ctx, "mfa.confirm", err)
	}
	e.emitAudit(ctx, audit.TypeMFAEnrolled, tenantID, userID, "", nil, nil)
	return codes, nil
}

// DisableTOTP turns MFA off after checking a current TOTP or backup code.
func (e *Engine) DisableTOTP(ctx context.Context, tenantID, userID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	u, err := e.loadUser(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled {
		return invalidInput(errors.New("mfa is not enabled"))
	}
	if err := e.allowVerify(ctx, "mfa_verify", tenantID, mfaVerifyKey(tenantID, userID)); err != nil {
		return err
	}
	if err := e.checkMFA(ctx, u, code); err != nil {
		return err
	}

	u.MFAEnabled = false
	u.MFASecret = ""
	u.BackupCodes = nil
	u.UpdatedAt = e.now()
	if err := e.users.UpdateUser(ctx, u); err != nil {
		return e.internal(ctx, "mfa.disable", err)
	}
	e.emitAudit(ctx, audit.TypeMFADisabled, tenantID, userID, "", nil, nil)
	return nil
}

// checkMFA accepts a TOTP code or an unused backup code. A matched backup
// code is removed before success is reported.
func (e *Engine) checkMFA(ctx context.Context, u *storage.User, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		e.metricInc(MetricMFARequired)
		return ErrMFARequired
	}

	ok, err := e.totp.Verify(u.MFASecret, code, e.now())
	if err != nil {
		return e.internal(ctx, "mfa.verify", err)
	}
	if ok {
		return nil
	}

	if idx := matchBackupCode(u.BackupCodes, code); idx >= 0 {
		err := e.users.ConsumeBackupCode(ctx, u.TenantID, u.ID, u.BackupCodes[idx], e.now())
		switch {
		case err == nil:
			u.BackupCodes = append(u.BackupCodes[:idx:idx], u.BackupCodes[idx+1:]...)
			e.metricInc(MetricBackupCodeUsed)
			return nil
		case !errors.Is(err, storage.ErrNotFound):
			return e.internal(ctx, "mfa.backup_consume", err)
		}
		// Spent by a concurrent caller since u was loaded.
	}

	e.metricInc(MetricMFAFailure)
	return ErrMFAInvalid
}

func mfaVerifyKey(tenantID, userID string) string {
	return "mfa:" + tenantID + ":" + userID
}

func matchBackupCode(hashes []string, code string) int {
	normalized := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(code))
	want := []byte(internal.HashSecret(normalized))
	found := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), want) == 1 && found < 0 {
			found = i
		}
	}
	return found
}
