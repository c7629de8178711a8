package mail

import (
	"bytes"
	"html/template"
)

var verifyTmpl = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Email Verification</title>
  </head>
  <body style="margin:0;padding:0;background:#f4f4f7;font-family:Arial,sans-serif;">
    <table width="100%" cellpadding="0" cellspacing="0" style="max-width:600px;margin:24px auto;background:#ffffff;border-radius:8px;">
      <tr><td style="padding:32px;">
        <h2 style="margin-top:0;color:#333333;">Hi {{.Name}},</h2>
        <p style="color:#555555;line-height:1.5;">Thanks for signing up. Please confirm your email address to activate your account.</p>
        <p style="text-align:center;margin:32px 0;">
          <a href="{{.Link}}" style="background:#4f46e5;color:#ffffff;padding:12px 24px;border-radius:6px;text-decoration:none;">Verify Email</a>
        </p>
        <p style="color:#999999;font-size:12px;">If the button does not work, open this link: {{.Link}}</p>
      </td></tr>
    </table>
  </body>
</html>`))

var resetTmpl = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family:Arial,sans-serif;color:#333333;">
    <p>Hi {{.Name}},</p>
    <p>We received a request to reset your password. The link below is valid for {{.Validity}}:</p>
    <p><a href="{{.Link}}">{{.Link}}</a></p>
    <p>Send a POST request with your new <strong>password</strong> to that address. If you did not ask for a reset you can ignore this email.</p>
  </body>
</html>`))

// VerificationEmail renders the message carrying the email verification link.
func VerificationEmail(to, name, link string) (Message, error) {
	var buf bytes.Buffer
	if err := verifyTmpl.Execute(&buf, struct{ Name, Link string }{name, link}); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Email Verification", HTML: buf.String()}, nil
}

// PasswordResetEmail renders the message carrying a time-boxed reset link.
func PasswordResetEmail(to, name, link, validity string) (Message, error) {
	var buf bytes.Buffer
	data := struct{ Name, Link, Validity string }{name, link, validity}
	if err := resetTmpl.Execute(&buf, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Password Reset", HTML: buf.String()}, nil
}
