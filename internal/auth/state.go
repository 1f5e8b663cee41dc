package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/soundcheck/internal/shared"
)

// statePayload is carried through the provider round trip in the OAuth state parameter.
type statePayload struct {
	UserID string `json:"userId"`
	Nonce  string `json:"nonce"`
	Sig    string `json:"sig"`
}

// encodeState builds a signed state value. An empty userID yields a state that links nothing.
func encodeState(secret []byte, userID string) (string, error) {
	nonce, err := shared.GenerateState()
	if err != nil {
		return "", err
	}

	payload := statePayload{UserID: userID, Nonce: nonce, Sig: signState(secret, userID, nonce)}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// decodeState verifies raw and returns the local user id it carries.
//
// Any malformed or unsigned value is [shared.ErrInvalidState]; state is untrusted input.
func decodeState(secret []byte, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty", shared.ErrInvalidState)
	}

	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidState, err)
	}

	var payload statePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidState, err)
	}

	want := signState(secret, payload.UserID, payload.Nonce)
	if payload.Nonce == "" || !hmac.Equal([]byte(want), []byte(payload.Sig)) {
		return "", fmt.Errorf("%w: signature mismatch", shared.ErrInvalidState)
	}
	return payload.UserID, nil
}

func signState(secret []byte, userID, nonce string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(userID))
	mac.Write([]byte{0})
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
