// Package config holds the client's static configuration.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the static configuration for a DeskHive client.
type Config struct {
	// BaseURL is the API origin, e.g. "https://api.deskhive.app".
	BaseURL string `validate:"required,url"`
	// AppName and AppVersion identify this client on every refresh call.
	AppName    string `validate:"required"`
	AppVersion string `validate:"required"`
	// RefreshTimeout bounds the token refresh call.
	RefreshTimeout time.Duration `validate:"gt=0"`

	// LoginURL is the browser endpoint that starts the web login flow.
	// Optional; required only when the client builds login URLs itself.
	LoginURL string `validate:"omitempty,url"`
	// RedirectURL is the app's post-login landing route.
	RedirectURL string `validate:"omitempty,uri"`
	// ClientID identifies the app to the login endpoint.
	ClientID string
}

// DefaultRefreshTimeout matches the platform's server-side refresh budget.
const DefaultRefreshTimeout = 30 * time.Second

// New returns a Config with defaults applied.
func New(baseURL, appName, appVersion string) Config {
	return Config{
		BaseURL:        baseURL,
		AppName:        appName,
		AppVersion:     appVersion,
		RefreshTimeout: DefaultRefreshTimeout,
	}
}

var validate = validator.New()

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("[Config Validate] %w", err)
	}
	return nil
}
