package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/services"
	"github.com/desertthunder/soundcheck/internal/shared"
)

// DefaultTimeout bounds each proxied request and each refresh when none is configured.
const DefaultTimeout = 10 * time.Second

// Refresher exchanges a refresh token for new credentials.
//
// A rejected grant must be reported as an error wrapping [shared.ErrExternalAuth]; transport
// problems as [shared.ErrNetwork].
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenRecord, error)
}

// Proxy is a [services.Caller] that attaches the stored access token and recovers from expiry.
//
// On 401/403 it refreshes once and replays the request once. Concurrent refreshes of the same
// refresh token share one exchange.
type Proxy struct {
	session   *Session
	refresher Refresher
	client    *http.Client
	timeout   time.Duration
	group     singleflight.Group
	logger    *log.Logger
}

// NewProxy creates a retrying caller. A nil client defaults to [http.DefaultClient]; a
// non-positive timeout to [DefaultTimeout].
func NewProxy(s *Session, refresher Refresher, client *http.Client, timeout time.Duration, logger *log.Logger) *Proxy {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Proxy{
		session:   s,
		refresher: refresher,
		client:    client,
		timeout:   timeout,
		logger:    shared.WithLogger(logger, "component", "proxy"),
	}
}

// Call implements [services.Caller].
//
// Errors:
//   - [shared.ErrNotAuthenticated] : nothing stored, the request is not sent
//   - [shared.ErrNetwork] : transport failure or timeout, no refresh attempted
//   - [shared.ErrSessionExpired] : the token could not be renewed, tokens are discarded
//   - [*shared.RequestError] : any other non-2xx, no refresh attempted
func (p *Proxy) Call(ctx context.Context, req *services.Request) (*services.Response, error) {
	token, err := p.session.Tokens()
	if err != nil {
		return nil, err
	}

	resp, err := p.send(ctx, req, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.OK() {
		return resp, nil
	}
	if !resp.Unauthorized() {
		return resp, resp.AsError()
	}

	p.logger.Debug("access token rejected", "status", resp.StatusCode, "url", req.URL)

	fresh, err := p.renew(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err = p.send(ctx, req, fresh.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.OK() {
		return resp, nil
	}
	if resp.Unauthorized() {
		if expireErr := p.session.Expire(); expireErr != nil {
			p.logger.Error("failed to discard tokens", "error", expireErr)
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrSessionExpired, resp.AsError())
	}
	return resp, resp.AsError()
}

func (p *Proxy) send(ctx context.Context, req *services.Request, accessToken string) (*services.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return services.Send(ctx, p.client, req, accessToken)
}

// renew returns credentials newer than rejected, refreshing only when the store has nothing newer.
func (p *Proxy) renew(ctx context.Context, rejected *models.TokenRecord) (*models.TokenRecord, error) {
	if current := p.superseded(rejected); current != nil {
		return current, nil
	}

	v, err, joined := p.group.Do(rejected.RefreshToken, func() (any, error) {
		// A flight for the same token may have finished between the check above and Do.
		if current := p.superseded(rejected); current != nil {
			return current, nil
		}
		return p.refresh(ctx, rejected.RefreshToken)
	})
	if joined {
		p.logger.Debug("joined in-flight refresh")
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.TokenRecord), nil
}

func (p *Proxy) superseded(rejected *models.TokenRecord) *models.TokenRecord {
	current, err := p.session.Tokens()
	if err != nil || current.AccessToken == rejected.AccessToken {
		return nil
	}
	p.logger.Debug("token already superseded, retrying with stored token")
	return current
}

func (p *Proxy) refresh(ctx context.Context, refreshToken string) (*models.TokenRecord, error) {
	if err := p.session.BeginRefresh(); err != nil {
		return nil, err
	}

	if refreshToken == "" {
		return nil, p.expire(shared.ErrNoRefreshToken)
	}

	// The refresh result is shared with joined callers, so it must outlive the leader's context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	rec, err := p.refresher.Refresh(ctx, refreshToken)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrExternalAuth), errors.Is(err, shared.ErrNoRefreshToken):
		return nil, p.expire(err)
	default:
		if abortErr := p.session.AbortRefresh(); abortErr != nil {
			p.logger.Error("failed to abort refresh", "error", abortErr)
		}
		return nil, err
	}

	if err := p.session.CompleteRefresh(*rec); err != nil {
		return nil, err
	}
	p.logger.Info("access token refreshed", "access_token", shared.MaskToken(rec.AccessToken))
	return rec, nil
}

func (p *Proxy) expire(cause error) error {
	if err := p.session.Expire(); err != nil {
		p.logger.Error("failed to discard tokens", "error", err)
	}
	return fmt.Errorf("%w: %w", shared.ErrSessionExpired, cause)
}
