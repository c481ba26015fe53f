package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/backend"
	"github.com/user/extractor-service/internal/domain"
)

// fakeSession records the operations the auth flow performs on it.
type fakeSession struct {
	navigated    []string
	actions      []string
	cookies      string
	cookieDomain string
	currentURL   string
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) PageSource(context.Context) (string, error) { return "", nil }

func (s *fakeSession) CurrentURL(context.Context) (string, error) { return s.currentURL, nil }

func (s *fakeSession) Type(_ context.Context, rule domain.FieldRule, text string) error {
	s.actions = append(s.actions, "type "+rule.Locator+"="+text)
	return nil
}

func (s *fakeSession) Click(_ context.Context, rule domain.FieldRule) error {
	s.actions = append(s.actions, "click "+rule.Locator)
	return nil
}

func (s *fakeSession) SetCookies(_ context.Context, raw, cookieDomain string) error {
	s.cookies = raw
	s.cookieDomain = cookieDomain
	return nil
}

func (s *fakeSession) Has(context.Context, domain.FieldRule) (bool, error) { return false, nil }

func (s *fakeSession) Close() {}

func authState(steps []domain.AuthStep) *domain.AuthState {
	return &domain.AuthState{
		NewspaperID: 42,
		Config: &domain.AuthConfig{
			LoginURL:      "https://news.example/login",
			AfterLoginURL: "https://news.example/account",
			Domain:        "news.example",
			Steps:         steps,
		},
		UseAutoSignin: true,
	}
}

var creds = map[string]string{"username": "reader", "password": "hunter2"}

func TestLoginExecutesStepsInIndexOrder(t *testing.T) {
	// Steps arrive out of order; the step index decides execution order.
	st := authState([]domain.AuthStep{
		{Step: 2, Action: domain.ActionClick, Kind: domain.LocatorCSS, Locator: "#submit"},
		{Step: 0, Action: domain.ActionType, Kind: domain.LocatorCSS, Locator: "#user", CredentialKey: "username"},
		{Step: 1, Action: domain.ActionType, Kind: domain.LocatorCSS, Locator: "#pass", CredentialKey: "password"},
	})
	session := &fakeSession{currentURL: "https://news.example/account"}

	phase, err := backend.NewMachine(zap.NewNop()).Login(context.Background(), session, st, creds)
	require.NoError(t, err)
	assert.Equal(t, backend.PhaseVerified, phase)
	assert.Equal(t, []string{"https://news.example/login"}, session.navigated)
	assert.Equal(t, []string{
		"type #user=reader",
		"type #pass=hunter2",
		"click #submit",
	}, session.actions)
}

func TestLoginUnknownActionFails(t *testing.T) {
	st := authState([]domain.AuthStep{
		{Step: 0, Action: "HOVER", Kind: domain.LocatorCSS, Locator: "#menu"},
	})
	session := &fakeSession{currentURL: "https://news.example/account"}

	phase, err := backend.NewMachine(zap.NewNop()).Login(context.Background(), session, st, creds)
	assert.Equal(t, backend.PhaseFailed, phase)
	assert.ErrorContains(t, err, "unsupported login action")
}

func TestLoginURLMismatchFails(t *testing.T) {
	st := authState([]domain.AuthStep{
		{Step: 0, Action: domain.ActionClick, Kind: domain.LocatorCSS, Locator: "#submit"},
	})
	session := &fakeSession{currentURL: "https://news.example/login?error=1"}

	phase, err := backend.NewMachine(zap.NewNop()).Login(context.Background(), session, st, creds)
	assert.Equal(t, backend.PhaseFailed, phase)
	assert.ErrorContains(t, err, "expected https://news.example/account")
}

func TestLoginReusesStoredSession(t *testing.T) {
	st := authState(nil)
	st.UseAutoSignin = false
	st.Cookies = "sid=abc; token=def"
	expires := time.Now().Add(time.Hour)
	st.SessionExpiresAt = &expires
	session := &fakeSession{}

	phase, err := backend.NewMachine(zap.NewNop()).Login(context.Background(), session, st, creds)
	require.NoError(t, err)
	assert.Equal(t, backend.PhaseVerified, phase)
	assert.Equal(t, []string{"https://news.example/account"}, session.navigated)
	assert.Equal(t, "sid=abc; token=def", session.cookies)
	assert.Equal(t, "news.example", session.cookieDomain)
	assert.Empty(t, session.actions)
}

func TestLoginExpiredSessionWithoutAutoSigninFails(t *testing.T) {
	st := authState(nil)
	st.UseAutoSignin = false
	st.Cookies = "sid=stale"
	expired := time.Now().Add(-time.Hour)
	st.SessionExpiresAt = &expired

	phase, err := backend.NewMachine(zap.NewNop()).Login(context.Background(), &fakeSession{}, st, creds)
	assert.Equal(t, backend.PhaseFailed, phase)
	assert.ErrorContains(t, err, "expired")
}

func TestLoginWithoutConfigFails(t *testing.T) {
	machine := backend.NewMachine(zap.NewNop())

	phase, err := machine.Login(context.Background(), &fakeSession{}, nil, creds)
	assert.Equal(t, backend.PhaseFailed, phase)
	assert.Error(t, err)

	phase, err = machine.Login(context.Background(), &fakeSession{}, &domain.AuthState{}, creds)
	assert.Equal(t, backend.PhaseFailed, phase)
	assert.Error(t, err)
}
