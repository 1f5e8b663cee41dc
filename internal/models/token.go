package models

// TokenRecord is the provider credential pair held by the token store.
//
// Expiry is not tracked; it is discovered when the provider answers 401 or 403.
// A record is replaced wholesale on every refresh.
type TokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// HasRefresh reports whether the record can be refreshed without user interaction.
func (t *TokenRecord) HasRefresh() bool {
	return t != nil && t.RefreshToken != ""
}

// LinkedIdentity associates a local account with a Spotify account.
//
// Connected implies a non-empty ExternalRefreshToken.
type LinkedIdentity struct {
	LocalUserID          string `json:"local_user_id"`
	ExternalAccountID    string `json:"external_account_id"`
	ExternalRefreshToken string `json:"-"`
	Connected            bool   `json:"connected"`
}

// Valid checks the connected/refresh-token invariant.
func (l LinkedIdentity) Valid() bool {
	if l.LocalUserID == "" || l.ExternalAccountID == "" {
		return false
	}
	return !l.Connected || l.ExternalRefreshToken != ""
}
