package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

type mailTemplate struct {
	subject string
	body    *template.Template
}

const mailLayout = `<div style="text-align:left;max-width:600px;margin:0 auto;padding:20px;background-color:#ffffff;border-radius:5px;">
<p>Dear User</p>
{{template "content" .}}
<p>Thank you for being a valued member of chartgate.</p>
<p>Best regards,<br/>chartgate Support Team</p>
</div>`

func mustMailTemplate(subject, content string) mailTemplate {
	t := template.Must(template.New("layout").Parse(mailLayout))
	template.Must(t.New("content").Parse(content))
	return mailTemplate{subject: subject, body: t}
}

var mailTemplates = map[Template]mailTemplate{
	TemplateTransactionVerified: mustMailTemplate(
		"Transaction verification success",
		`<p>Your transaction {{.hash}} is verified and your subscription is now active.</p>`,
	),
	TemplateSubscriptionReminder: mustMailTemplate(
		"Subscription Renewal Reminder",
		`<p>{{.message}} Please update your plan.</p>`,
	),
	TemplateSubscriptionExpired: mustMailTemplate(
		"Subscription expired",
		`<p>Your subscription has expired. Buy a plan to regain access to all collections.</p>`,
	),
}

func renderMail(msg Message) (subject, body string, err error) {
	tpl, ok := mailTemplates[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", msg.Template)
	}

	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, msg.Data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", msg.Template, err)
	}
	return tpl.subject, buf.String(), nil
}
