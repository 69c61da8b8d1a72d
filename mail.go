package main

import (
	"context"
	"fmt"
	"time"

	"kovoy/models"

	"go.uber.org/zap"
)

// Outbound mail is fire-and-forget relative to the HTTP response: the
// response is returned whether or not delivery succeeds, and failures are
// only logged so neither account existence nor deliverability leaks to the
// caller.
func (a *app) sendMailAsync(to, subject, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.mail.Send(ctx, to, subject, body); err != nil {
			a.log.Warn("mail delivery failed", zap.String("subject", subject), zap.Error(err))
		}
	}()
}

// salutation picks the friendliest name available for a greeting.
func salutation(user *models.User) string {
	switch {
	case user.FirstName != "":
		return user.FirstName
	case user.DisplayName != "":
		return user.DisplayName
	default:
		return "traveller"
	}
}

func (a *app) sendVerificationMail(user *models.User, rawToken string) {
	link := fmt.Sprintf("%s/confirm-email?token=%s", a.cfg.AppBaseURL, rawToken)
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Please confirm your email address to start planning trips on Kovoy:</p>
<p><a href="%s">Confirm email</a></p>
<p>The link is valid for %d minutes. If you did not create an account, ignore this message.</p>`,
		salutation(user), link, int(a.cfg.EmailVerificationTTL.Minutes()))
	a.sendMailAsync(user.Email, "Confirm your email address", body)
}

func (a *app) sendResetMail(user *models.User, rawToken string) {
	link := fmt.Sprintf("%s/reset?token=%s", a.cfg.AppBaseURL, rawToken)
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>We received a request to reset your password:</p>
<p><a href="%s">Reset password</a></p>
<p>The link is valid for %d minutes. If you did not request a reset, ignore this message.</p>`,
		salutation(user), link, int(a.cfg.ResetTTL.Minutes()))
	a.sendMailAsync(user.Email, "Reset your password", body)
}

func (a *app) sendTwoFactorMail(user *models.User, code string) {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your sign-in code is:</p>
<p style="font-size:24px;letter-spacing:4px;"><strong>%s</strong></p>
<p>The code expires in %d minutes.</p>`,
		salutation(user), code, int(a.cfg.TwoFactorTTL.Minutes()))
	a.sendMailAsync(user.Email, "Your sign-in code", body)
}
