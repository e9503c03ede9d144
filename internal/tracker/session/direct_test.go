package session

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

const loginPageHTML = `<!DOCTYPE html>
<html><body>
<form action="/Account/Login" method="post">
  <input name="__RequestVerificationToken" type="hidden" value="abc123"/>
  <input name="Email" type="text"/>
  <input name="Password" type="password"/>
  <button type="submit">Sign in</button>
</form>
</body></html>`

func TestParseLoginForm(t *testing.T) {
	form := parseLoginForm(loginPageHTML, "driver@example.com")
	assert.Equal(t, "abc123", form.token)
	assert.Equal(t, "__RequestVerificationToken", form.tokenField)
	assert.Equal(t, "Email", form.userField)
	assert.Equal(t, "Password", form.passField)
}

func TestParseLoginFormDefaults(t *testing.T) {
	// No parseable form: field names fall back to the portal defaults.
	form := parseLoginForm("<html><body>maintenance</body></html>", "driver@example.com")
	assert.Empty(t, form.token)
	assert.Equal(t, "Email", form.userField)
	assert.Equal(t, "Password", form.passField)

	form = parseLoginForm("", "fleetadmin")
	assert.Equal(t, "Username", form.userField)
}

func TestParseLoginFormCustomNames(t *testing.T) {
	page := `<form><input name="LoginName" type="text"/><input name="Pwd" type="password"/></form>`
	form := parseLoginForm(page, "fleetadmin")
	assert.Equal(t, "LoginName", form.userField)
	assert.Equal(t, "Pwd", form.passField)
	assert.Empty(t, form.token)
}

func TestLooksLikeChallenge(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"plain login page", http.StatusOK, loginPageHTML, false},
		{"forbidden", http.StatusForbidden, "", true},
		{"service unavailable", http.StatusServiceUnavailable, "", true},
		{"interstitial body", http.StatusOK, "<title>Just a moment...</title>", true},
		{"cf marker", http.StatusOK, `<script src="/cdn-cgi/challenge-platform/x.js">`, true},
		{"not found", http.StatusNotFound, "gone", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeChallenge(tt.status, tt.body))
		})
	}
}
