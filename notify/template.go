package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	texttemplate "text/template"

	"github.com/MrEthical07/magiclink"
	"github.com/MrEthical07/magiclink/token"
)

const defaultSubject = `Log in to {{.RealmDisplayName}}`

const defaultText = `Hello {{.Name}},

Use the link below to log in to {{.RealmDisplayName}}. It expires in {{.ExpiryMinutes}} minutes and works once.

{{.Link}}

If you did not ask for this link you can ignore this message.
`

const defaultHTML = `<!DOCTYPE html>
<html>
<body>
<p>Hello {{.Name}},</p>
<p>Use the link below to log in to {{.RealmDisplayName}}. It expires in {{.ExpiryMinutes}} minutes and works once.</p>
<p><a href="{{.Link}}">Log in to {{.RealmDisplayName}}</a></p>
<p>If you did not ask for this link you can ignore this message.</p>
</body>
</html>
`

// Rendered is a message ready for a transport.
type Rendered struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Templates renders the subject, plain-text and HTML bodies of a magic-link
// message. The HTML body is rendered with html/template so the link and
// names are escaped.
type Templates struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type templateData struct {
	Name             string
	Email            string
	Link             string
	ExpiryMinutes    int
	RealmName        string
	RealmDisplayName string
}

// DefaultTemplates returns the built-in English templates.
func DefaultTemplates() *Templates {
	t, err := NewTemplates(defaultSubject, defaultText, defaultHTML)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTemplates parses custom templates. Any of them may reference Name,
// Email, Link, ExpiryMinutes, RealmName and RealmDisplayName. An empty html
// produces text-only messages.
func NewTemplates(subject, text, html string) (*Templates, error) {
	if subject == "" || text == "" {
		return nil, fmt.Errorf("%w: subject and text templates are required", ErrInvalidConfig)
	}
	t := &Templates{}
	var err error
	if t.subject, err = texttemplate.New("subject").Option("missingkey=error").Parse(subject); err != nil {
		return nil, fmt.Errorf("%w: subject template: %v", ErrInvalidConfig, err)
	}
	if t.text, err = texttemplate.New("text").Option("missingkey=error").Parse(text); err != nil {
		return nil, fmt.Errorf("%w: text template: %v", ErrInvalidConfig, err)
	}
	if html != "" {
		if t.html, err = htmltemplate.New("html").Option("missingkey=error").Parse(html); err != nil {
			return nil, fmt.Errorf("%w: html template: %v", ErrInvalidConfig, err)
		}
	}
	return t, nil
}

// Render produces the message for msg.
func (t *Templates) Render(msg magiclink.Message) (Rendered, error) {
	if msg.User.Email == "" {
		return Rendered{}, ErrNoRecipient
	}
	data := templateData{
		Name:             displayName(msg.User),
		Email:            msg.User.Email,
		Link:             msg.Link,
		ExpiryMinutes:    msg.ExpiryMinutes,
		RealmName:        msg.RealmName,
		RealmDisplayName: msg.RealmDisplayName,
	}
	if data.RealmDisplayName == "" {
		data.RealmDisplayName = msg.RealmName
	}

	out := Rendered{To: msg.User.Email}
	var buf bytes.Buffer
	if err := t.subject.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render subject: %w", err)
	}
	out.Subject = buf.String()

	buf.Reset()
	if err := t.text.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render text: %w", err)
	}
	out.Text = buf.String()

	if t.html != nil {
		buf.Reset()
		if err := t.html.Execute(&buf, data); err != nil {
			return Rendered{}, fmt.Errorf("render html: %w", err)
		}
		out.HTML = buf.String()
	}
	return out, nil
}

func displayName(u magiclink.User) string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// LinkFingerprint returns the fingerprint of the token carried by link, or ""
// when link has no key parameter.
func LinkFingerprint(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	raw := u.Query().Get("key")
	if raw == "" {
		return ""
	}
	return token.Fingerprint(raw)
}
