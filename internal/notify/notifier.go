package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

// StatusChange describes a doctor's decision on an appointment.
type StatusChange struct {
	ToEmail     string
	PatientName string
	DoctorName  string
	Time        time.Time
	Status      string
	Treatment   string
}

var statusChangeTmpl = template.Must(template.New("status").Parse(`<p>Dear {{.PatientName}},</p>
<p>Your appointment with Dr. {{.DoctorName}} on {{.When}} has been {{.Verb}}.</p>
<ul>
  <li>Treatment: {{.Treatment}}</li>
  <li>Status: {{.Status}}</li>
</ul>
{{if .Accepted}}<p>Please arrive 10 minutes early.</p>{{else}}<p>You can book another time from your dashboard.</p>{{end}}`))

var passwordResetTmpl = template.Must(template.New("reset").Parse(`<p>A password reset was requested for your account.</p>
<p><a href="{{.URL}}">Reset your password</a></p>
<p>The link expires in {{.Expiry}}. If you did not request it you can ignore this email.</p>`))

// EmailNotifier renders and sends patient-facing emails.
type EmailNotifier struct {
	mailer Mailer
}

func NewEmailNotifier(mailer Mailer) *EmailNotifier {
	return &EmailNotifier{mailer: mailer}
}

// SendStatusChange tells the patient their appointment was accepted or rejected.
func (n *EmailNotifier) SendStatusChange(ctx context.Context, change StatusChange) error {
	accepted := change.Status == "Accepted"
	verb := "rejected"
	if accepted {
		verb = "confirmed"
	}

	var body bytes.Buffer
	err := statusChangeTmpl.Execute(&body, struct {
		StatusChange
		When     string
		Verb     string
		Accepted bool
	}{change, change.Time.UTC().Format("Mon, 02 Jan 2006 15:04 MST"), verb, accepted})
	if err != nil {
		return fmt.Errorf("render status email: %w", err)
	}

	subject := fmt.Sprintf("Your appointment has been %s", verb)
	return n.mailer.Send(ctx, change.ToEmail, subject, body.String())
}

// SendPasswordReset emails a reset link.
func (n *EmailNotifier) SendPasswordReset(ctx context.Context, to, resetURL string, expiry time.Duration) error {
	var body bytes.Buffer
	err := passwordResetTmpl.Execute(&body, struct {
		URL    string
		Expiry time.Duration
	}{resetURL, expiry})
	if err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}
	return n.mailer.Send(ctx, to, "Password reset", body.String())
}
