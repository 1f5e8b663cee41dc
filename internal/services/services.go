// package services defines HTTP clients for the Spotify Web API and the soundcheck backend
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/soundcheck/internal/shared"
)

// Caller issues an authenticated request against the provider API.
//
// Implementations return a [*shared.RequestError] (or another wrapped error) for any
// non-2xx outcome, so callers only decode successful responses.
type Caller interface {
	Call(ctx context.Context, req *Request) (*Response, error)
}

// Request describes one provider API call. It is rebuilt into a fresh [http.Request] on every
// attempt so it can be replayed after a token refresh.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Unauthorized reports whether the provider rejected the access token.
func (r *Response) Unauthorized() bool {
	return r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if v == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// AsError converts a non-2xx response into a [*shared.RequestError] carrying the provider message.
func (r *Response) AsError() error {
	return &shared.RequestError{Status: r.StatusCode, Message: ErrorMessage(r.Body)}
}

// Send performs req with the given bearer token and reads the whole body.
//
// Only transport failures (including context deadlines) are returned as errors, wrapped in
// [shared.ErrNetwork]; every HTTP status is returned as a [Response].
func Send(ctx context.Context, client *http.Client, req *Request, accessToken string) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

func networkError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %v", shared.ErrNetwork, shared.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
}

// ErrorMessage extracts a human readable message from a provider or backend error body.
//
// Understands the Web API envelope {"error": {"status", "message"}}, the OAuth envelope
// {"error", "error_description"} and the backend envelope {"error", "details"}.
func ErrorMessage(body []byte) string {
	var envelope struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Details          string          `json:"details"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}

	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
		return nested.Message
	}

	var code string
	if err := json.Unmarshal(envelope.Error, &code); err != nil {
		return ""
	}
	switch {
	case envelope.ErrorDescription != "":
		return envelope.ErrorDescription
	case envelope.Details != "":
		return code + ": " + envelope.Details
	default:
		return code
	}
}

// BearerCaller is a [Caller] that presents one fixed access token and never refreshes.
//
// The backend uses it right after a code exchange, when the token is known to be fresh.
type BearerCaller struct {
	client      *http.Client
	accessToken string
}

// NewBearerCaller creates a [BearerCaller]. A nil client defaults to [http.DefaultClient].
func NewBearerCaller(client *http.Client, accessToken string) *BearerCaller {
	if client == nil {
		client = http.DefaultClient
	}
	return &BearerCaller{client: client, accessToken: accessToken}
}

// Call implements [Caller].
func (b *BearerCaller) Call(ctx context.Context, req *Request) (*Response, error) {
	resp, err := Send(ctx, b.client, req, b.accessToken)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, resp.AsError()
	}
	return resp, nil
}

// Playlist represents a music playlist
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
}

// Track represents a music track flattened for display and export
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	Duration   int    `json:"duration"` // Duration in seconds
	Popularity int    `json:"popularity,omitempty"`
	PlayedAt   string `json:"played_at,omitempty"`
	URI        string `json:"uri,omitempty"`
}
