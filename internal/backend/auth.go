package backend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/domain"
)

// AuthPhase is the observable phase of one login attempt.
type AuthPhase string

const (
	PhaseNotStarted AuthPhase = "NOT_STARTED"
	PhaseStep       AuthPhase = "STEP"
	PhaseVerified   AuthPhase = "VERIFIED"
	PhaseFailed     AuthPhase = "FAILED"
)

// Machine drives a configured login flow over a backend session. It holds no
// per-source state; everything it needs arrives with the call.
type Machine struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewMachine(logger *zap.Logger) *Machine {
	return &Machine{logger: logger, now: time.Now}
}

// Login executes the login flow for one source and reports the terminal
// phase. A stored session that is still fresh short-circuits the step
// sequence entirely: the cookies are replayed and the flow is verified
// without touching the login form.
func (m *Machine) Login(ctx context.Context, s Session, st *domain.AuthState, creds map[string]string) (AuthPhase, error) {
	if st == nil || st.Config == nil {
		return PhaseFailed, fmt.Errorf("no authentication configuration for source")
	}
	cfg := st.Config

	if !st.UseAutoSignin {
		if !st.SessionValid(m.now()) {
			return PhaseFailed, fmt.Errorf("stored session expired and automatic sign-in is disabled")
		}
		if err := s.Navigate(ctx, cfg.AfterLoginURL); err != nil {
			return PhaseFailed, err
		}
		if err := s.SetCookies(ctx, st.Cookies, cfg.Domain); err != nil {
			return PhaseFailed, err
		}
		m.logger.Info("reused stored session", zap.Int64("newspaper_id", st.NewspaperID))
		return PhaseVerified, nil
	}

	if err := s.Navigate(ctx, cfg.LoginURL); err != nil {
		return PhaseFailed, err
	}

	steps := make([]domain.AuthStep, len(cfg.Steps))
	copy(steps, cfg.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })

	for _, step := range steps {
		rule := domain.FieldRule{Kind: step.Kind, Locator: step.Locator}
		var err error
		switch step.Action {
		case domain.ActionType:
			err = s.Type(ctx, rule, creds[step.CredentialKey])
		case domain.ActionClick:
			err = s.Click(ctx, rule)
		default:
			return PhaseFailed, fmt.Errorf("unsupported login action %q at step %d", step.Action, step.Step)
		}
		if err != nil {
			return PhaseFailed, fmt.Errorf("login step %d (%s): %w", step.Step, step.Action, err)
		}
	}

	current, err := s.CurrentURL(ctx)
	if err != nil {
		return PhaseFailed, err
	}
	if current != cfg.AfterLoginURL {
		return PhaseFailed, fmt.Errorf("login landed on %s, expected %s", current, cfg.AfterLoginURL)
	}
	m.logger.Info("login verified", zap.Int64("newspaper_id", st.NewspaperID))
	return PhaseVerified, nil
}
