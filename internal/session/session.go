package session

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/shared"
)

// Session couples the persisted [Credentials] with the in-memory [AuthState].
//
// Every state change that affects credentials is written to the store before the phase moves,
// so a crash never leaves the store behind the state.
type Session struct {
	mu     sync.RWMutex
	state  AuthState
	store  TokenStore
	logger *log.Logger
}

// New creates an unauthenticated session over store. Call [Bootstrap] to resolve the initial state.
func New(store TokenStore, logger *log.Logger) *Session {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Session{store: store, logger: shared.WithLogger(logger, "component", "session")}
}

// State returns a snapshot of the current [AuthState].
func (s *Session) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Store returns the backing [TokenStore].
func (s *Session) Store() TokenStore {
	return s.store
}

// Tokens returns the persisted provider tokens or [shared.ErrNotAuthenticated].
func (s *Session) Tokens() (*models.TokenRecord, error) {
	creds, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	token := creds.Token()
	if token == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return token, nil
}

// Authenticate persists rec and moves to [Authenticated]. An empty refresh token in rec keeps
// the stored one. userID, when non-empty, names the local account the tokens were linked to and
// marks the stored account as connected.
func (s *Session) Authenticate(rec models.TokenRecord, userID string) error {
	if rec.AccessToken == "" {
		return fmt.Errorf("%w: access token", shared.ErrMissingArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkTransition(s.state.Phase, Authenticated); err != nil {
		return err
	}

	var linked *models.AccountView
	if err := s.store.Update(func(c *Credentials) error {
		c.SetToken(rec)
		if userID != "" {
			linked = markLinked(c.UserData, userID)
			c.UserData = linked
		}
		return nil
	}); err != nil {
		return err
	}

	s.state.Phase = Authenticated
	s.state.AccessToken = rec.AccessToken
	if userID != "" {
		s.state.UserID = userID
		s.state.User = linked
	}
	s.logger.Debug("authenticated", "access_token", shared.MaskToken(rec.AccessToken), "user_id", s.state.UserID)
	return nil
}

// restore adopts already-persisted credentials without writing them back.
func (s *Session) restore(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkTransition(s.state.Phase, Authenticated); err != nil {
		return err
	}
	s.state.Phase = Authenticated
	s.state.AccessToken = creds.AccessToken
	s.adoptUser(creds.UserData)
	return nil
}

// BeginRefresh moves to [Refreshing]. Credentials found in the store while the session is not
// yet [Authenticated] are adopted first.
func (s *Session) BeginRefresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Phase {
	case Refreshing:
		return nil
	case Unauthenticated, Expired:
		s.state.Phase = Authenticated
	}

	if err := checkTransition(s.state.Phase, Refreshing); err != nil {
		return err
	}
	s.state.Phase = Refreshing
	return nil
}

// CompleteRefresh persists the refreshed rec and returns to [Authenticated]. A logout that
// landed while the refresh was in flight wins and rec is dropped.
func (s *Session) CompleteRefresh(rec models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase == Unauthenticated {
		return fmt.Errorf("%w: logged out during refresh", shared.ErrNotAuthenticated)
	}
	if err := checkTransition(s.state.Phase, Authenticated); err != nil {
		return err
	}
	if err := s.store.Update(func(c *Credentials) error {
		c.SetToken(rec)
		return nil
	}); err != nil {
		return err
	}

	s.state.Phase = Authenticated
	s.state.AccessToken = rec.AccessToken
	return nil
}

// AbortRefresh returns to [Authenticated] with the old credentials after a refresh that failed
// for reasons other than provider rejection.
func (s *Session) AbortRefresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != Refreshing {
		return nil
	}
	s.state.Phase = Authenticated
	return nil
}

// Expire discards both provider tokens and moves to [Expired]. The local account session is kept.
// Calling it on an already expired or logged out session only clears the store.
func (s *Session) Expire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Update(func(c *Credentials) error {
		c.ClearToken()
		return nil
	}); err != nil {
		return err
	}

	s.state.AccessToken = ""
	switch s.state.Phase {
	case Unauthenticated, Expired:
		return nil
	}

	// Authenticated here means the retry after a refresh was rejected.
	if err := checkTransition(s.state.Phase, Expired); err != nil {
		return err
	}
	s.state.Phase = Expired
	s.logger.Warn("session expired, re-authorization required")
	return nil
}

// Logout discards every persisted credential and moves to [Unauthenticated].
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Update(func(c *Credentials) error {
		*c = Credentials{}
		return nil
	}); err != nil {
		return err
	}

	s.state = AuthState{Phase: Unauthenticated}
	return nil
}

// SetAccount persists the local session token and account returned by register or login.
func (s *Session) SetAccount(authToken string, user models.AccountView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Update(func(c *Credentials) error {
		c.AuthToken = authToken
		c.UserData = &user
		return nil
	}); err != nil {
		return err
	}

	s.adoptUser(&user)
	return nil
}

// Account returns the persisted local session token and account, or [shared.ErrNotAuthenticated].
func (s *Session) Account() (string, *models.AccountView, error) {
	creds, err := s.store.Load()
	if err != nil {
		return "", nil, err
	}
	if creds.AuthToken == "" {
		return "", nil, fmt.Errorf("%w: no local account session", shared.ErrNotAuthenticated)
	}
	return creds.AuthToken, creds.UserData, nil
}

// markLinked returns a copy of user flagged as connected to Spotify. A stored account that belongs
// to someone else is replaced by a bare view of userID.
func markLinked(user *models.AccountView, userID string) *models.AccountView {
	view := models.AccountView{ID: userID}
	if user != nil && (user.ID == "" || user.ID == userID) {
		view = *user
		view.ID = userID
	}
	view.SpotifyConnected = true
	return &view
}

func (s *Session) adoptUser(user *models.AccountView) {
	if user == nil {
		return
	}
	s.state.User = user
	if s.state.UserID == "" {
		s.state.UserID = user.ID
	}
}
