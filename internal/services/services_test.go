package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/soundcheck/internal/shared"
	tu "github.com/desertthunder/soundcheck/internal/testing"
)

func TestSend(t *testing.T) {
	t.Run("Sets Bearer And Content Type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
				t.Errorf("expected bearer header, got %q", got)
			}
			if got := r.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("expected JSON content type, got %q", got)
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"a":1}` {
				t.Errorf("unexpected body %s", body)
			}
			w.Header().Set("X-Custom-Header", "test-value")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		resp, err := Send(context.Background(), http.DefaultClient, &Request{
			Method: http.MethodPost,
			URL:    server.URL,
			Body:   []byte(`{"a":1}`),
		}, "token-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.StatusCode != http.StatusCreated || !resp.OK() {
			t.Errorf("expected 201, got %d", resp.StatusCode)
		}
		if resp.Headers.Get("X-Custom-Header") != "test-value" {
			t.Error("expected response headers to be preserved")
		}

		var out struct {
			OK bool `json:"ok"`
		}
		if err := resp.Decode(&out); err != nil || !out.OK {
			t.Errorf("expected decoded body, got %+v, %v", out, err)
		}
	})

	t.Run("Non-2xx Is Not An Error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		resp, err := Send(context.Background(), http.DefaultClient, &Request{Method: http.MethodGet, URL: server.URL}, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !resp.Unauthorized() {
			t.Errorf("expected unauthorized, got %d", resp.StatusCode)
		}
	})

	t.Run("Failed Request Creation", func(t *testing.T) {
		_, err := Send(context.Background(), http.DefaultClient, &Request{Method: http.MethodGet, URL: "http://example.com/\x00"}, "")
		if err == nil || !strings.Contains(err.Error(), "failed to create request") {
			t.Errorf("expected 'failed to create request' error, got %v", err)
		}
	})

	t.Run("Transport Failure Is Network Error", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))}

		_, err := Send(context.Background(), client, &Request{Method: http.MethodGet, URL: "http://example.com"}, "")
		if !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
	})

	t.Run("Body Read Failure Is Network Error", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(&http.Response{
			StatusCode: http.StatusOK,
			Body:       &tu.FCloser{},
			Header:     http.Header{},
		}, nil)}

		_, err := Send(context.Background(), client, &Request{Method: http.MethodGet, URL: "http://example.com"}, "")
		if !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
	})

	t.Run("Deadline Is Network Timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := Send(ctx, http.DefaultClient, &Request{Method: http.MethodGet, URL: server.URL}, "")
		if !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"Web API Envelope", `{"error":{"status":401,"message":"The access token expired"}}`, "The access token expired"},
		{"OAuth Envelope", `{"error":"invalid_grant","error_description":"Refresh token revoked"}`, "Refresh token revoked"},
		{"Backend Envelope", `{"error":"Failed to refresh token","details":"invalid_grant"}`, "Failed to refresh token: invalid_grant"},
		{"Code Only", `{"error":"invalid_request"}`, "invalid_request"},
		{"Not JSON", `upstream exploded`, ""},
		{"No Error Field", `{"status":"ok"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestBearerCaller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"status":404,"message":"Non existing id"}}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	caller := NewBearerCaller(nil, "token")

	t.Run("Success", func(t *testing.T) {
		resp, err := caller.Call(context.Background(), &Request{Method: http.MethodGet, URL: server.URL + "/ok"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !resp.OK() {
			t.Errorf("expected OK response, got %d", resp.StatusCode)
		}
	})

	t.Run("Non-2xx Is RequestError", func(t *testing.T) {
		_, err := caller.Call(context.Background(), &Request{Method: http.MethodGet, URL: server.URL + "/missing"})

		var reqErr *shared.RequestError
		if !errors.As(err, &reqErr) {
			t.Fatalf("expected RequestError, got %v", err)
		}
		if reqErr.Status != http.StatusNotFound || reqErr.Message != "Non existing id" {
			t.Errorf("unexpected request error %+v", reqErr)
		}
		if !errors.Is(err, shared.ErrRequestFailed) {
			t.Error("expected RequestError to unwrap to ErrRequestFailed")
		}
	})
}
