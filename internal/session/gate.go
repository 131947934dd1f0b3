// Package session decides who the user is and which backend serves them.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"anipink/internal/backend"
	"anipink/internal/validate"
	"anipink/pkg/logging"
	"anipink/pkg/models"
)

type State int

const (
	Unauthenticated State = iota
	PendingActivation
	Active
	Denied
)

func (s State) String() string {
	switch s {
	case PendingActivation:
		return "pending_activation"
	case Active:
		return "active"
	case Denied:
		return "denied"
	default:
		return "unauthenticated"
	}
}

// Messages shown to a user who was signed out by the gate.
const (
	MsgPendingApproval = "Pending Admin Approval"
	MsgAccessDenied    = "Access denied."
)

var (
	ErrPendingActivation = errors.New("account pending activation")
	ErrAccessDenied      = errors.New("account access denied")
	ErrExpired           = errors.New("session expired")
)

// Authenticator is the identity provider. *backend.RelayClient satisfies it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (backend.AuthResult, error)
	Register(ctx context.Context, email, password, username string) (backend.AuthResult, error)
	Logout(ctx context.Context, token string) error
	Profile(ctx context.Context, token string) (models.Profile, error)
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type Registration struct {
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Username        string `json:"username" validate:"omitempty,min=3,max=30"`
	Consent         bool   `json:"consent"`
}

// Gate tracks the sign-in state. A credential is only handed out while
// the account is Active.
type Gate struct {
	auth Authenticator
	now  func() time.Time

	mu      sync.RWMutex
	state   State
	user    backend.AuthResult
	message string
}

func NewGate(auth Authenticator) *Gate {
	return &Gate{auth: auth, now: time.Now}
}

func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Message is the notice left by the last sign-in attempt, if any.
func (g *Gate) Message() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.message
}

// User returns the signed-in account.
func (g *Gate) User() (backend.AuthResult, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.user, g.state == Active
}

// Credential implements backend.CredentialSource.
func (g *Gate) Credential() (string, string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state != Active || g.user.Token == "" {
		return "", "", false
	}
	return g.user.UserID, g.user.Token, true
}

func (g *Gate) SignIn(ctx context.Context, c Credentials) error {
	c.Email = strings.TrimSpace(c.Email)
	if err := validate.Struct(c); err != nil {
		return err
	}
	res, err := g.auth.Login(ctx, c.Email, c.Password)
	if err != nil {
		g.set(Unauthenticated, backend.AuthResult{}, "")
		return err
	}
	return g.admit(ctx, res)
}

func (g *Gate) Register(ctx context.Context, r Registration) error {
	r.Email = strings.TrimSpace(r.Email)
	r.Username = strings.TrimSpace(r.Username)
	if err := validate.Struct(r); err != nil {
		return err
	}
	if !r.Consent {
		return validate.Fields("consent", "you must accept the data policy to register")
	}
	res, err := g.auth.Register(ctx, r.Email, r.Password, r.Username)
	if err != nil {
		g.set(Unauthenticated, backend.AuthResult{}, "")
		return err
	}
	return g.admit(ctx, res)
}

// Resume re-admits a saved token, checking the account status again.
func (g *Gate) Resume(ctx context.Context, res backend.AuthResult) error {
	if res.Token == "" || (!res.ExpiresAt.IsZero() && g.now().After(res.ExpiresAt)) {
		g.set(Unauthenticated, backend.AuthResult{}, "")
		return ErrExpired
	}
	return g.admit(ctx, res)
}

// SignOut revokes the token on the relay and returns to Unauthenticated.
// The local state is cleared even when the relay cannot be reached.
func (g *Gate) SignOut(ctx context.Context) error {
	g.mu.Lock()
	token := g.user.Token
	g.state, g.user, g.message = Unauthenticated, backend.AuthResult{}, ""
	g.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := g.auth.Logout(ctx, token); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (g *Gate) admit(ctx context.Context, res backend.AuthResult) error {
	log := logging.Component("session")

	profile, err := g.auth.Profile(ctx, res.Token)
	if err != nil {
		g.revoke(ctx, res.Token)
		g.set(Unauthenticated, backend.AuthResult{}, "")
		return fmt.Errorf("fetch account status: %w", err)
	}

	switch models.NormalizeStatus(profile.Status) {
	case models.AccountActive:
		g.set(Active, res, "")
		log.Info().Str("user_id", res.UserID).Msg("signed in")
		return nil
	case models.AccountPendingActivation:
		g.revoke(ctx, res.Token)
		g.set(PendingActivation, backend.AuthResult{}, MsgPendingApproval)
		log.Info().Str("user_id", res.UserID).Msg("account pending activation")
		return ErrPendingActivation
	default:
		g.revoke(ctx, res.Token)
		g.set(Denied, backend.AuthResult{}, MsgAccessDenied)
		log.Warn().Str("user_id", res.UserID).Str("status", string(profile.Status)).Msg("account denied")
		return ErrAccessDenied
	}
}

func (g *Gate) revoke(ctx context.Context, token string) {
	if err := g.auth.Logout(ctx, token); err != nil {
		log := logging.Component("session")
		log.Warn().Err(err).Msg("revoke token failed")
	}
}

func (g *Gate) set(s State, user backend.AuthResult, msg string) {
	g.mu.Lock()
	g.state, g.user, g.message = s, user, msg
	g.mu.Unlock()
}
