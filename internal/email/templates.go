package email

import "fmt"

// VerificationEmailHTML returns the HTML body for an email-verification link
func VerificationEmailHTML(link, appName string, ttlHours int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Verify your email</title>
</head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;background-color:#f4f5f7;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f4f5f7;padding:40px 0;">
<tr><td align="center">
<table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;overflow:hidden;">
  <tr><td style="padding:32px 40px 24px;text-align:center;">
    <h1 style="margin:0;font-size:24px;color:#1a1a2e;">Verify your email</h1>
  </td></tr>
  <tr><td style="padding:0 40px;">
    <p style="margin:0 0 24px;font-size:15px;color:#4a4a68;line-height:1.6;">
      Thanks for signing up for <strong>%s</strong>! Click the button below to verify your email address.
    </p>
  </td></tr>
  <tr><td style="padding:0 40px 24px;text-align:center;">
    <a href="%s" style="display:inline-block;background-color:#6c63ff;color:#ffffff;text-decoration:none;border-radius:6px;padding:14px 36px;font-size:15px;font-weight:bold;">Verify email</a>
  </td></tr>
  <tr><td style="padding:0 40px 32px;">
    <p style="margin:0;font-size:13px;color:#8888a0;line-height:1.5;">
      This link expires in <strong>%d hours</strong>. If you didn't create an account, you can safely ignore this email.
    </p>
  </td></tr>
</table>
</td></tr>
</table>
</body>
</html>`, appName, link, ttlHours)
}

// VerificationEmailText returns the plain-text body for an email-verification link
func VerificationEmailText(link, appName string, ttlHours int) string {
	return fmt.Sprintf(`Verify your email

Thanks for signing up for %s! Open the link below to verify your email address.

%s

This link expires in %d hours. If you didn't create an account, you can safely ignore this email.

- %s`, appName, link, ttlHours, appName)
}

// ResetEmailHTML returns the HTML body for a password-reset link
func ResetEmailHTML(link, appName string, ttlMinutes int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Reset your password</title>
</head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;background-color:#f4f5f7;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f4f5f7;padding:40px 0;">
<tr><td align="center">
<table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;overflow:hidden;">
  <tr><td style="padding:32px 40px 24px;text-align:center;">
    <h1 style="margin:0;font-size:24px;color:#1a1a2e;">Reset your password</h1>
  </td></tr>
  <tr><td style="padding:0 40px;">
    <p style="margin:0 0 24px;font-size:15px;color:#4a4a68;line-height:1.6;">
      We received a request to reset your <strong>%s</strong> password. Click the button below to choose a new one.
    </p>
  </td></tr>
  <tr><td style="padding:0 40px 24px;text-align:center;">
    <a href="%s" style="display:inline-block;background-color:#6c63ff;color:#ffffff;text-decoration:none;border-radius:6px;padding:14px 36px;font-size:15px;font-weight:bold;">Reset password</a>
  </td></tr>
  <tr><td style="padding:0 40px 32px;">
    <p style="margin:0;font-size:13px;color:#8888a0;line-height:1.5;">
      This link expires in <strong>%d minutes</strong> and can be used once. If you didn't request a reset, you can safely ignore this email.
    </p>
  </td></tr>
</table>
</td></tr>
</table>
</body>
</html>`, appName, link, ttlMinutes)
}

// ResetEmailText returns the plain-text body for a password-reset link
func ResetEmailText(link, appName string, ttlMinutes int) string {
	return fmt.Sprintf(`Reset your password

We received a request to reset your %s password. Open the link below to choose a new one.

%s

This link expires in %d minutes and can be used once. If you didn't request a reset, you can safely ignore this email.

- %s`, appName, link, ttlMinutes, appName)
}

// PasswordChangedText returns the plain-text body for the security notice
// sent after a successful password change or reset
func PasswordChangedText(appName string) string {
	return fmt.Sprintf(`Your password was changed

The password for your %s account was just changed. All existing sessions have been signed out.

If this wasn't you, reset your password immediately and contact support.

- %s`, appName, appName)
}

// PasswordChangedHTML returns the HTML body for the security notice
func PasswordChangedHTML(appName string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Your password was changed</title>
</head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;background-color:#f4f5f7;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f4f5f7;padding:40px 0;">
<tr><td align="center">
<table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;overflow:hidden;">
  <tr><td style="padding:32px 40px 24px;text-align:center;">
    <h1 style="margin:0;font-size:24px;color:#1a1a2e;">Your password was changed</h1>
  </td></tr>
  <tr><td style="padding:0 40px 32px;">
    <p style="margin:0 0 16px;font-size:15px;color:#4a4a68;line-height:1.6;">
      The password for your <strong>%s</strong> account was just changed. All existing sessions have been signed out.
    </p>
    <p style="margin:0;font-size:13px;color:#8888a0;line-height:1.5;">
      If this wasn't you, reset your password immediately and contact support.
    </p>
  </td></tr>
</table>
</td></tr>
</table>
</body>
</html>`, appName)
}
