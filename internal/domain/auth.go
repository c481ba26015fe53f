package domain

import "time"

// AuthAction is a login script step type.
type AuthAction string

const (
	ActionType  AuthAction = "TYPE"
	ActionClick AuthAction = "CLICK"
)

// AuthStep is one instruction of a login script. Steps execute in ascending
// Step order regardless of storage order.
type AuthStep struct {
	Step          int         `json:"step"`
	Action        AuthAction  `json:"action"`
	Kind          LocatorKind `json:"type"`
	Locator       string      `json:"name"`
	CredentialKey string      `json:"key,omitempty"`
}

// AuthConfig describes how to log in to a protected source.
type AuthConfig struct {
	LoginURL       string     `json:"loginUrl"`
	AfterLoginURL  string     `json:"afterLoginUrl"`
	Domain         string     `json:"domain,omitempty"`
	SiteIdentifier *FieldRule `json:"siteIdentifier,omitempty"`
	Steps          []AuthStep `json:"steps"`
}

// AuthState is the stored authentication row for a source: the script plus
// any previously captured session cookies.
type AuthState struct {
	NewspaperID      int64
	Config           *AuthConfig
	Cookies          string
	SessionExpiresAt *time.Time
	UseAutoSignin    bool
}

// SessionValid reports whether the stored cookie session is still usable.
func (s *AuthState) SessionValid(now time.Time) bool {
	return s.Cookies != "" && s.SessionExpiresAt != nil && s.SessionExpiresAt.After(now)
}
