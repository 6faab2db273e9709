package mail

import (
	"bytes"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

type ConfirmationData struct {
	AppName   string
	FirstName string
	Code      string
	ExpiresIn time.Duration
}

func (d ConfirmationData) ExpiresInHours() int {
	return int(d.ExpiresIn / time.Hour)
}

var (
	confirmationText = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(
		`Hello {{if .FirstName}}{{.FirstName}}{{else}}there{{end}},

Your {{.AppName}} confirmation code is: {{.Code}}

The code expires in {{.ExpiresInHours}} hours. If you did not create an account, ignore this email.
`))

	confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(
		`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <p>Hello {{if .FirstName}}{{.FirstName}}{{else}}there{{end}},</p>
  <p>Your {{.AppName}} confirmation code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code expires in {{.ExpiresInHours}} hours. If you did not create an account, ignore this email.</p>
</body>
</html>
`))
)

func ConfirmationMessage(to string, data ConfirmationData) (Message, error) {
	var text, html bytes.Buffer
	if err := confirmationText.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := confirmationHTML.Execute(&html, data); err != nil {
		return Message{}, err
	}

	return Message{
		To:      to,
		Subject: data.AppName + " email confirmation code",
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
