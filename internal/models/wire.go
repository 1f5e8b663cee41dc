package models

// AccountView is the JSON shape of a local account returned by the account endpoints.
type AccountView struct {
	ID                  string `json:"id"`
	Username            string `json:"username"`
	Email               string `json:"email"`
	SpotifyConnected    bool   `json:"spotifyConnected"`
	SpotifyRefreshToken string `json:"spotifyRefreshToken,omitempty"`
}

// NewAccountView projects an [Account] for the wire.
func NewAccountView(a *Account) AccountView {
	return AccountView{
		ID:                  a.ID(),
		Username:            a.Username(),
		Email:               a.Email(),
		SpotifyConnected:    a.SpotifyConnected(),
		SpotifyRefreshToken: a.SpotifyRefreshToken(),
	}
}

// AccountSession is returned by register and login: a local session token plus the account.
type AccountSession struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    AccountView `json:"user"`
}

// ExternalUser is the subset of the provider profile echoed by token verification.
type ExternalUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// VerifyResult is the response of the token verification endpoint.
type VerifyResult struct {
	Valid  bool          `json:"valid"`
	User   *ExternalUser `json:"user,omitempty"`
	Error  string        `json:"error,omitempty"`
	Status int           `json:"status,omitempty"`
}

// ScopeReport lists which scope-gated endpoints accepted a token.
type ScopeReport struct {
	TokenStatus  string          `json:"token_status"`
	ScopeResults map[string]bool `json:"scope_results"`
}

// ErrorBody is the JSON error envelope used by the backend.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
