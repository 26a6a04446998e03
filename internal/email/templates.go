package email

import (
	"fmt"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Template names as constants for type safety.
const (
	TemplatePasswordReset = "password_reset"
	TemplateEmailChange   = "email_change"
	TemplateWelcome       = "welcome"
)

// PasswordResetData contains data for password reset emails.
type PasswordResetData struct {
	Link      string
	ExpiresIn string // e.g., "1 hour"
}

// EmailChangeData contains data for e-mail change confirmation emails.
type EmailChangeData struct {
	Link      string
	NewEmail  string
	ExpiresIn string
}

// WelcomeData contains data for welcome emails.
type WelcomeData struct {
	Email string
}

const footer = "\n\n---\n\n*This is an automated message from hostdesk. Please do not reply to this email.*\n"

// Message is a rendered e-mail: the markdown source doubles as the plain-text part.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Render turns a template and its data into a Message.
func Render(templateName string, data any) (Message, error) {
	var subject, md string
	switch d := data.(type) {
	case PasswordResetData:
		subject = "Reset your hostdesk password"
		md = fmt.Sprintf("## Reset your password\n\n"+
			"We received a request to reset the password of your hosting account. "+
			"Follow the link below to choose a new one. The link expires in **%s** and works once.\n\n"+
			"[Reset password](%s)\n\n"+
			"If you did not request a reset you can ignore this e-mail. Your password stays unchanged.",
			d.ExpiresIn, d.Link)
	case EmailChangeData:
		subject = "Confirm your new hostdesk e-mail address"
		md = fmt.Sprintf("## Confirm your new address\n\n"+
			"Someone asked to use **%s** as the login address of a hostdesk account. "+
			"Confirm the change within **%s**:\n\n"+
			"[Confirm e-mail address](%s)\n\n"+
			"If this was not you, ignore this e-mail and nothing changes.",
			d.NewEmail, d.ExpiresIn, d.Link)
	case WelcomeData:
		subject = "Welcome to hostdesk"
		md = fmt.Sprintf("## Welcome!\n\nYour hosting account for **%s** is ready.", d.Email)
	default:
		return Message{}, fmt.Errorf("email: no template %q for %T", templateName, data)
	}

	md += footer
	return Message{
		Subject: subject,
		Text:    md,
		HTML:    wrapHTML(subject, renderMarkdown(md)),
	}, nil
}

// renderMarkdown converts markdown to sanitized HTML.
func renderMarkdown(md string) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	})
	htmlContent := markdown.Render(doc, renderer)

	// Sanitize HTML so user-supplied addresses cannot inject markup
	return string(bluemonday.UGCPolicy().SanitizeBytes(htmlContent))
}

func wrapHTML(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
%s
</body>
</html>`, title, body)
}
