// Package session owns the user's credentials and cached profile. It is the
// only writer of the token keys in the client state store and the token
// source the request client consults on every call.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"srq20.org/internal/apiclient"
	"srq20.org/internal/audit"
	"srq20.org/internal/obs"
	"srq20.org/internal/storage"
	"srq20.org/internal/validate"
)

// Client state keys owned by the session.
const (
	KeyAccessToken  = "authToken"
	KeyRefreshToken = "refreshToken"
	KeyUserInfo     = "userInfo"
)

// API is the part of the request client the session uses.
type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
	SetTokenSource(ts apiclient.TokenSource)
}

// Profile is the authenticated user's account data.
type Profile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Gender    string `json:"genero,omitempty"`
	BirthDate string `json:"data_nascimento,omitempty"`
	IsStaff   bool   `json:"is_staff"`
}

// DisplayName is the full name when known, else the username.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if name := strings.TrimSpace(p.FirstName + " " + p.LastName); name != "" {
		return name
	}
	return p.Username
}

// Registration is the sign-up form.
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Gender    string `json:"genero,omitempty"`
	BirthDate string `json:"data_nascimento,omitempty"`
}

type credentials struct {
	access  string
	refresh string
}

// Manager tracks the session state. Credentials are replaced as one value.
type Manager struct {
	store  storage.Store
	api    API
	policy validate.PasswordPolicy

	mu      sync.RWMutex
	creds   credentials
	profile *Profile
}

// Option customises a Manager.
type Option func(*Manager)

// WithPasswordPolicy selects the password rule applied by Register.
func WithPasswordPolicy(p validate.PasswordPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// New restores the session persisted in store and registers the manager as
// api's token source.
func New(ctx context.Context, store storage.Store, api API, opts ...Option) (*Manager, error) {
	if store == nil || api == nil {
		return nil, errors.New("session: store and api are required")
	}
	m := &Manager{store: store, api: api, policy: validate.PasswordLength}
	for _, opt := range opts {
		opt(m)
	}

	access, _, err := store.Get(ctx, KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("session: restore: %w", err)
	}
	refresh, _, err := store.Get(ctx, KeyRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("session: restore: %w", err)
	}
	m.creds = credentials{access: access, refresh: refresh}

	raw, ok, err := store.Get(ctx, KeyUserInfo)
	if err != nil {
		return nil, fmt.Errorf("session: restore: %w", err)
	}
	if ok && raw != "" {
		var p Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			obs.Logger().Warn("session: cached profile is unreadable", zap.Error(err))
		} else {
			m.profile = &p
		}
	}

	api.SetTokenSource(m)
	return m, nil
}

// IsAuthenticated reports whether an access token is held.
func (m *Manager) IsAuthenticated() bool {
	return m.AccessToken() != ""
}

// AccessToken implements apiclient.TokenSource.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.access
}

// CurrentUser returns a copy of the cached profile, or nil.
func (m *Manager) CurrentUser() *Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return nil
	}
	p := *m.profile
	return &p
}

// RequireAuth returns ErrNotAuthenticated when no access token is held.
func (m *Manager) RequireAuth() error {
	if !m.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges username and password for a token pair, persists it and
// then loads the profile. A profile failure is logged and does not fail the login,
// unless the backend rejects the new token, which ends the session again.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	var pair tokenPair
	err := m.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/token/",
		Body:   loginRequest{Username: username, Password: password},
		Public: true,
	}, &pair)
	if err != nil {
		return loginError(err)
	}
	if pair.Access == "" {
		return &AuthError{Status: http.StatusOK, Message: "token response missing access token"}
	}

	// A previous user's profile must not survive into the new session.
	m.mu.Lock()
	m.profile = nil
	m.mu.Unlock()
	if err := m.store.Delete(ctx, KeyUserInfo); err != nil {
		return fmt.Errorf("session: clear profile: %w", err)
	}
	if err := m.store.SetMany(ctx, map[string]string{
		KeyAccessToken:  pair.Access,
		KeyRefreshToken: pair.Refresh,
	}); err != nil {
		return fmt.Errorf("session: persist tokens: %w", err)
	}
	m.mu.Lock()
	m.creds = credentials{access: pair.Access, refresh: pair.Refresh}
	m.mu.Unlock()

	ctx = audit.WithActor(ctx, username)
	profileLoaded := true
	if _, err := m.FetchUserInfo(ctx); err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			// The fresh token was rejected and the session is already cleared.
			return err
		}
		profileLoaded = false
		obs.Logger().Warn("session: profile fetch after login failed", zap.Error(err))
	}
	_ = audit.LogEvent(ctx, "session.login", map[string]any{"profile_loaded": profileLoaded})
	return nil
}

func loginError(err error) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return &AuthError{Status: apiErr.Status, Message: apiErr.Message}
	}
	return err
}

// Logout forgets the credentials and profile. Calling it twice is harmless.
func (m *Manager) Logout(ctx context.Context) error {
	was := m.IsAuthenticated()
	actor := m.actor()
	err := m.clear(ctx)
	_ = audit.LogEvent(audit.WithActor(ctx, actor), "session.logout", map[string]any{"was_authenticated": was})
	if err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	return nil
}

// Invalidate implements apiclient.TokenSource. It runs when the backend
// rejects the access token and leaves the session unauthenticated.
func (m *Manager) Invalidate(ctx context.Context) {
	actor := m.actor()
	if err := m.clear(ctx); err != nil {
		obs.Logger().Error("session: clearing rejected credentials failed", zap.Error(err))
	}
	_ = audit.LogEvent(audit.WithActor(ctx, actor), "session.invalidated", nil)
}

// clear drops in-memory state first so the session is unauthenticated even
// when the store write fails.
func (m *Manager) clear(ctx context.Context) error {
	m.mu.Lock()
	m.creds = credentials{}
	m.profile = nil
	m.mu.Unlock()
	return m.store.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyUserInfo)
}

func (m *Manager) actor() string {
	if p := m.CurrentUser(); p != nil {
		return p.Username
	}
	return ""
}

// FetchUserInfo loads the profile of the logged-in user and caches it.
func (m *Manager) FetchUserInfo(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := m.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/usuarios/me/"}, &p); err != nil {
		return nil, fmt.Errorf("session: fetch profile: %w", err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("session: encode profile: %w", err)
	}
	if err := m.store.Set(ctx, KeyUserInfo, string(raw)); err != nil {
		return nil, fmt.Errorf("session: persist profile: %w", err)
	}
	m.mu.Lock()
	m.profile = &p
	m.mu.Unlock()
	out := p
	return &out, nil
}

// RegistrationRules are the local checks applied before a sign-up is sent.
func RegistrationRules(policy validate.PasswordPolicy) validate.Rules {
	return validate.Rules{
		"username":   {Required: true},
		"email":      {Required: true, Email: true},
		"password":   {Required: true, Password: true, Policy: policy},
		"password2":  {Required: true, ConfirmOf: "password"},
		"first_name": {Required: true},
		"last_name":  {Required: true},
	}
}

// Register validates reg locally and then creates the account. It does not log in.
func (m *Manager) Register(ctx context.Context, reg Registration) error {
	fields := map[string]string{
		"username":   reg.Username,
		"email":      reg.Email,
		"password":   reg.Password,
		"password2":  reg.Password2,
		"first_name": reg.FirstName,
		"last_name":  reg.LastName,
	}
	if err := validate.ValidateForm(fields, RegistrationRules(m.policy)).Err(); err != nil {
		return err
	}

	err := m.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/registro/",
		Body:   reg,
		Public: true,
	}, nil)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status != 0 {
			return &FieldErrors{Status: apiErr.Status, Fields: parseFieldErrors(apiErr.Body)}
		}
		return err
	}
	_ = audit.LogEvent(audit.WithActor(ctx, reg.Username), "session.register", nil)
	return nil
}

// AccessTokenExpiry reads the exp claim of the access token without
// verifying its signature. It is informational only.
func (m *Manager) AccessTokenExpiry() (time.Time, bool) {
	token := m.AccessToken()
	if token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
