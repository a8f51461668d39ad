package merco

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/SametHaymana/merco-api/notify"
)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")

	if err := env.engine.RequestPasswordReset(ctx, "T", "A@B.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	msg := env.sender.last(t)
	if msg.Purpose != notify.PurposePasswordReset || msg.To != "a@b.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
	tok, _ := linkTokenFrom(t, msg)
	if !strings.HasPrefix(tok, "reset_") {
		t.Fatalf("unexpected reset token %q", tok)
	}

	if err := env.engine.ConfirmPasswordReset(ctx, "T", tok, "N3wPassword"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	_, err := env.engine.Refresh(ctx, res.RefreshToken)
	expectErr(t, err, ErrTokenExpired)

	_, err = env.engine.SignIn(ctx, SignInRequest{TenantID: "T", Email: "a@b.com", Password: "Passw0rd!"})
	expectErr(t, err, ErrInvalidCredentials)
	env.signIn(t, "T", "a@b.com", "N3wPassword")

	expectErr(t, env.engine.ConfirmPasswordReset(ctx, "T", tok, "An0therPass"), ErrInvalidToken)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.RequestPasswordReset(context.Background(), "T", "ghost@b.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if env.sender.count() != 0 {
		t.Fatalf("expected no delivery, got %d", env.sender.count())
	}
}

func TestPasswordResetValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "T", "a@b.com", "Passw0rd!")

	if err := env.engine.RequestPasswordReset(ctx, "T", "a@b.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	tok, _ := linkTokenFrom(t, env.sender.last(t))

	expectErr(t, env.engine.ConfirmPasswordReset(ctx, "T", "reset_bogus", "N3wPassword"), ErrInvalidToken)
	expectErr(t, env.engine.ConfirmPasswordReset(ctx, "T", tok, "short"), ErrInvalidInput)
	expectErr(t, env.engine.ConfirmPasswordReset(ctx, "OTHER", tok, "N3wPassword"), ErrInvalidToken)

	env.clock.Advance(time.Hour)
	expectErr(t, env.engine.ConfirmPasswordReset(ctx, "T", tok, "N3wPassword"), ErrInvalidToken)
}

func TestPasswordResetRejectsUserBannedAfterRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")

	if err := env.engine.RequestPasswordReset(ctx, "T", "a@b.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	tok, _ := linkTokenFrom(t, env.sender.last(t))
	if err := env.engine.SetBanned(ctx, "T", res.User.ID, true); err != nil {
		t.Fatalf("SetBanned failed: %v", err)
	}

	expectErr(t, env.engine.ConfirmPasswordReset(ctx, "T", tok, "N3wPassword"), ErrForbidden)

	if err := env.engine.SetBanned(ctx, "T", res.User.ID, false); err != nil {
		t.Fatalf("SetBanned failed: %v", err)
	}
	env.signIn(t, "T", "a@b.com", "Passw0rd!")
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "T", "a@b.com", "Passw0rd!")
	other := env.signIn(t, "T", "a@b.com", "Passw0rd!")

	expectErr(t, env.engine.ChangePassword(ctx, "T", res.User.ID, "Wrong1pass", "N3wPassword"), ErrInvalidCredentials)
	expectErr(t, env.engine.ChangePassword(ctx, "T", res.User.ID, "Passw0rd!", "Passw0rd!"), ErrInvalidInput)
	expectErr(t, env.engine.ChangePassword(ctx, "T", res.User.ID, "Passw0rd!", "nodigits"), ErrInvalidInput)
	expectErr(t, env.engine.ChangePassword(ctx, "T", "missing", "Passw0rd!", "N3wPassword"), ErrUserNotFound)

	if err := env.engine.ChangePassword(ctx, "T", res.User.ID, "Passw0rd!", "N3wPassword"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	for _, tok := range []string{res.RefreshToken, other.RefreshToken} {
		_, err := env.engine.Refresh(ctx, tok)
		expectErr(t, err, ErrTokenExpired)
	}
	env.signIn(t, "T", "a@b.com", "N3wPassword")
}

func TestChangePasswordForPasswordlessUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.engine.SendOTP(ctx, "T", ChannelEmail, "a@b.com"); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}
	res, err := env.engine.VerifyOTP(ctx, "T", "a@b.com", otpFrom(t, env.sender.last(t)))
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}

	// No password hash is stored, so no old password can match.
	expectErr(t, env.engine.ChangePassword(ctx, "T", res.User.ID, "Anything1", "N3wPassword"), ErrInvalidCredentials)

	// A reset sets the first password.
	if err := env.engine.RequestPasswordReset(ctx, "T", "a@b.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	tok, _ := linkTokenFrom(t, env.sender.last(t))
	if err := env.engine.ConfirmPasswordReset(ctx, "T", tok, "N3wPassword"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	env.signIn(t, "T", "a@b.com", "N3wPassword")
}
