package session

import (
	"fmt"
	"net/url"

	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/shared"
)

// Query parameters the backend appends to the frontend root after a successful callback.
const (
	ParamAccessToken  = "access_token"
	ParamRefreshToken = "refresh_token"
	ParamUserID       = "userId"
)

// BootstrapResult is the resolved initial state plus the location to show in the address bar.
//
// Location equals the input with the token parameters removed; callers apply it without a reload.
type BootstrapResult struct {
	State    AuthState
	Location string
	// FromRedirect is set when the tokens came from the location rather than the store.
	FromRedirect bool
}

// Bootstrap resolves the initial [AuthState] for a page load at location.
//
// Tokens in the location query win and are persisted; otherwise persisted tokens are adopted;
// otherwise the session stays [Unauthenticated].
func Bootstrap(s *Session, location string) (*BootstrapResult, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: location: %v", shared.ErrInvalidInput, err)
	}

	q := u.Query()
	if access := q.Get(ParamAccessToken); access != "" {
		rec := models.TokenRecord{AccessToken: access, RefreshToken: q.Get(ParamRefreshToken)}
		if err := s.Authenticate(rec, q.Get(ParamUserID)); err != nil {
			return nil, err
		}

		q.Del(ParamAccessToken)
		q.Del(ParamRefreshToken)
		q.Del(ParamUserID)
		u.RawQuery = q.Encode()

		return &BootstrapResult{State: s.State(), Location: u.String(), FromRedirect: true}, nil
	}

	creds, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	if creds.Token() != nil && s.State().Phase != Authenticated {
		if err := s.restore(creds); err != nil {
			return nil, err
		}
	}

	return &BootstrapResult{State: s.State(), Location: location}, nil
}
