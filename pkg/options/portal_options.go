package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PortalOptions)(nil)

// PortalOptions describes the tracking portal and the account used against it.
type PortalOptions struct {
	// BaseURL is the portal root, e.g. https://trackmategps.com.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// LoginPath is the path of the HTML login form.
	LoginPath string `json:"login-path" mapstructure:"login-path"`

	// TrackingPath marks the authenticated area; landing on it after the
	// login POST means the credentials were accepted.
	TrackingPath string `json:"tracking-path" mapstructure:"tracking-path"`

	// MapPath is the dashboard page scraped for embedded vehicle data.
	MapPath string `json:"map-path" mapstructure:"map-path"`

	// DataPaths are candidate XHR endpoints probed for position JSON,
	// in priority order.
	DataPaths []string `json:"data-paths" mapstructure:"data-paths"`

	// PushPath is the root of the realtime long-polling transport.
	// Empty disables the push strategy.
	PushPath string `json:"push-path" mapstructure:"push-path"`

	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`

	// RequestTimeout bounds every plain HTTP request against the portal.
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`

	// SessionValidity is how long a harvested cookie set is trusted.
	SessionValidity time.Duration `json:"session-validity" mapstructure:"session-validity"`

	// RefreshMargin re-authenticates this long before the session expires.
	RefreshMargin time.Duration `json:"refresh-margin" mapstructure:"refresh-margin"`
}

// NewPortalOptions creates a PortalOptions object with default parameters.
func NewPortalOptions() *PortalOptions {
	return &PortalOptions{
		BaseURL:         "https://trackmategps.com",
		LoginPath:       "/Account/Login",
		TrackingPath:    "/Tracking",
		MapPath:         "/en/Map",
		DataPaths: []string{
			"/en-US/Tracking/GetLatestPositions",
			"/Tracking/GetLatestPositions",
			"/api/positions/latest",
		},
		PushPath:        "/signalr",
		RequestTimeout:  30 * time.Second,
		SessionValidity: 12 * time.Hour,
		RefreshMargin:   5 * time.Minute,
	}
}

func (o *PortalOptions) Validate() []error {
	errors := []error{}

	u, err := url.Parse(o.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Errorf("invalid portal base URL %q", o.BaseURL))
	}
	if o.Username == "" {
		errors = append(errors, errEmpty("portal.username"))
	}
	if o.Password == "" {
		errors = append(errors, errEmpty("portal.password"))
	}
	if o.RefreshMargin >= o.SessionValidity {
		errors = append(errors, fmt.Errorf("portal.refresh-margin (%s) must be below portal.session-validity (%s)",
			o.RefreshMargin, o.SessionValidity))
	}

	return errors
}

func (o *PortalOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BaseURL, "portal.base-url", o.BaseURL, "Root URL of the tracking portal.")
	fs.StringVar(&o.LoginPath, "portal.login-path", o.LoginPath, "Path of the portal login form.")
	fs.StringVar(&o.TrackingPath, "portal.tracking-path", o.TrackingPath, "Path fragment marking the authenticated area.")
	fs.StringVar(&o.MapPath, "portal.map-path", o.MapPath, "Path of the dashboard page scraped for embedded data.")
	fs.StringSliceVar(&o.DataPaths, "portal.data-paths", o.DataPaths, "Candidate XHR endpoints probed for position JSON.")
	fs.StringVar(&o.PushPath, "portal.push-path", o.PushPath, "Root path of the realtime long-polling transport. Empty disables it.")
	fs.StringVar(&o.Username, "portal.username", o.Username, "Portal account username or email.")
	fs.StringVar(&o.Password, "portal.password", o.Password, "Portal account password.")
	fs.DurationVar(&o.RequestTimeout, "portal.request-timeout", o.RequestTimeout, "Timeout for individual portal requests.")
	fs.DurationVar(&o.SessionValidity, "portal.session-validity", o.SessionValidity, "How long harvested session cookies are trusted.")
	fs.DurationVar(&o.RefreshMargin, "portal.refresh-margin", o.RefreshMargin, "Re-authenticate this long before session expiry.")
}
