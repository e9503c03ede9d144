package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
	"github.com/fleetlink-io/fleetlink/pkg/log"
)

// defaultUserAgent is sent on the direct path; the solver path replaces it
// with whatever the rendering browser resolved.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// errSkipStrategy tells the login chain to move on to the next strategy
// without treating the attempt as a hard failure.
var errSkipStrategy = errors.New("login strategy not applicable")

// loginResult is what a successful strategy hands back to the chain.
type loginResult struct {
	cookies   map[string]string
	userAgent string
	via       string
}

// loginStrategy is one way of turning credentials into cookies.
type loginStrategy interface {
	name() string
	attempt(ctx context.Context, a *Authenticator) (*loginResult, error)
}

// challengeMarkers are body signatures of known bot-challenge platforms.
// Seeing one means the direct path cannot proceed.
var challengeMarkers = []string{
	"challenge-platform",
	"cf-browser-verification",
	"__cf_chl",
	"Just a moment",
	"Checking your browser",
	"Attention Required",
}

func looksLikeChallenge(status int, body string) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// loginForm is what we managed to learn from the login page HTML. Field
// names vary across portal skins, so defaults are assumed and overridden
// only when the form says otherwise.
type loginForm struct {
	token      string
	tokenField string
	userField  string
	passField  string
}

func defaultLoginForm(username string) loginForm {
	f := loginForm{
		tokenField: "__RequestVerificationToken",
		userField:  "Username",
		passField:  "Password",
	}
	if strings.Contains(username, "@") {
		f.userField = "Email"
	}
	return f
}

// parseLoginForm extracts the anti-forgery token and the real field names
// from the login page. Any parse failure falls back to the defaults.
func parseLoginForm(body, username string) loginForm {
	form := defaultLoginForm(username)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return form
	}

	// The login form is the one holding a password input.
	pass := doc.Find("form input[type='password']").First()
	if pass.Length() == 0 {
		return form
	}
	if name, ok := pass.Attr("name"); ok && name != "" {
		form.passField = name
	}

	scope := pass.Closest("form")

	if token := scope.Find("input[name='__RequestVerificationToken']").First(); token.Length() > 0 {
		form.token, _ = token.Attr("value")
	}

	scope.Find("input[type='text'], input[type='email']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if name, ok := sel.Attr("name"); ok && name != "" {
			form.userField = name
			return false
		}
		return true
	})

	return form
}

// directLogin performs the plain HTTP form login: GET the login page,
// harvest the CSRF token, POST the credentials, inspect the landing URL.
type directLogin struct{}

func (directLogin) name() string { return "direct" }

func (directLogin) attempt(ctx context.Context, a *Authenticator) (*loginResult, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	httpc := a.loginClient(jar)

	loginURL := a.loginURL()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	browserHeaders(req.Header, "")

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, &core.ConnectionError{Op: "login page fetch", Err: err}
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, &core.ConnectionError{Op: "login page read", Err: err}
	}

	if looksLikeChallenge(resp.StatusCode, body) {
		log.Info("Login page is behind a bot challenge, deferring to solver", "status", resp.StatusCode)
		return nil, errSkipStrategy
	}
	if resp.StatusCode >= 400 {
		return nil, &core.ConnectionError{Op: "login page fetch",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	form := parseLoginForm(body, a.opts.Username)

	values := url.Values{}
	values.Set(form.userField, a.opts.Username)
	values.Set(form.passField, a.opts.Password)
	if form.token != "" {
		values.Set(form.tokenField, form.token)
	}

	post, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build login POST: %w", err)
	}
	browserHeaders(post.Header, loginURL)
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	postResp, err := httpc.Do(post)
	if err != nil {
		return nil, &core.ConnectionError{Op: "login submit", Err: err}
	}
	if _, err := readBody(postResp); err != nil {
		return nil, &core.ConnectionError{Op: "login submit read", Err: err}
	}

	finalURL := postResp.Request.URL
	if err := a.checkLanding(finalURL.String()); err != nil {
		return nil, err
	}

	cookies := map[string]string{}
	base, _ := url.Parse(a.opts.BaseURL)
	for _, c := range jar.Cookies(base) {
		cookies[c.Name] = c.Value
	}
	if len(cookies) == 0 {
		return nil, &core.AuthError{Reason: "login succeeded but no cookies were issued"}
	}

	return &loginResult{cookies: cookies, userAgent: defaultUserAgent, via: "direct"}, nil
}

// solverLogin replays the same GET/POST sequence through the
// challenge-solving proxy and harvests the cookies it resolved.
type solverLogin struct{}

func (solverLogin) name() string { return "solver" }

func (solverLogin) attempt(ctx context.Context, a *Authenticator) (*loginResult, error) {
	if a.solver == nil {
		return nil, errSkipStrategy
	}

	loginURL := a.loginURL()
	sessionName := a.solver.NewSessionName()

	if err := a.solver.CreateSession(ctx, sessionName); err != nil {
		return nil, err
	}
	defer func() {
		if err := a.solver.DestroySession(context.WithoutCancel(ctx), sessionName); err != nil {
			log.Warn("Failed to destroy solver session", "session", sessionName, "err", err)
		}
	}()

	page, err := a.solver.Get(ctx, sessionName, loginURL)
	if err != nil {
		return nil, err
	}

	form := parseLoginForm(page.Response, a.opts.Username)

	values := url.Values{}
	values.Set(form.userField, a.opts.Username)
	values.Set(form.passField, a.opts.Password)
	if form.token != "" {
		values.Set(form.tokenField, form.token)
	}

	landed, err := a.solver.Post(ctx, sessionName, loginURL, values.Encode())
	if err != nil {
		return nil, err
	}

	if err := a.checkLanding(landed.URL); err != nil {
		return nil, err
	}

	cookies := landed.CookieMap()
	if len(cookies) == 0 {
		return nil, &core.AuthError{Reason: "solver login succeeded but no cookies were issued"}
	}

	ua := landed.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &loginResult{cookies: cookies, userAgent: ua, via: "solver"}, nil
}

func browserHeaders(h http.Header, referer string) {
	h.Set("User-Agent", defaultUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Upgrade-Insecure-Requests", "1")
	if referer != "" {
		h.Set("Referer", referer)
	}
}

func readBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
