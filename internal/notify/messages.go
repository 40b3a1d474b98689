// AngelaMos | 2026
// messages.go

package notify

import (
	"fmt"
	"net/url"
)

const (
	ConfirmationSubject = "Confirm your email"
	ResetSubject        = "Password Reset"
)

// ConfirmationLink appends email and token as query parameters to baseURL,
// keeping any query the base already carries.
func ConfirmationLink(baseURL, email, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse confirmation base url: %w", err)
	}

	q := u.Query()
	q.Set("email", email)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func ConfirmationBody(link string) string {
	return "Click the link to confirm your email: " + link
}

// ResetBody always carries the raw token; the link is added when a reset
// page is configured.
func ResetBody(token, link string) string {
	body := "Use this token: " + token
	if link != "" {
		body += "\n\nOr open: " + link
	}
	return body
}
