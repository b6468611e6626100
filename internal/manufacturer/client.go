package manufacturer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/casevend/kiosk-server-go/internal/config"
	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
)

// API is the surface the orchestration services depend on.
type API interface {
	ReportPayment(ctx context.Context, req PayDataRequest) (*PayDataResult, error)
	ReportOrder(ctx context.Context, req OrderDataRequest) (*OrderDataResult, error)
	GetPayStatus(ctx context.Context, thirdIDs []string) ([]StatusResult, error)
	GetOrderStatus(ctx context.Context, thirdIDs []string) ([]StatusResult, error)
}

type Options struct {
	BaseURL    string
	Account    string
	Password   string
	SignSecret string
	SystemName string
	ReqSource  string
	Timeout    time.Duration
}

// Client performs signed, authenticated calls against the manufacturer API.
// It caches the bearer token and transparently re-authenticates once on a
// 401/403 before surfacing AuthFailure.
type Client struct {
	http *resty.Client
	opts Options

	mu           sync.Mutex
	token        string
	tokenFetched time.Time
}

var _ API = (*Client)(nil)

func NewClient(opts Options) *Client {
	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(config.RemoteRetryCount).
		SetRetryWaitTime(config.RemoteRetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		http: httpClient,
		opts: opts,
	}
}

func (c *Client) ReportPayment(ctx context.Context, req PayDataRequest) (*PayDataResult, error) {
	var result PayDataResult
	if err := c.post(ctx, "order/payData", req.fields(), &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ReportOrder(ctx context.Context, req OrderDataRequest) (*OrderDataResult, error) {
	var result OrderDataResult
	if err := c.post(ctx, "order/orderData", req.fields(), &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetPayStatus(ctx context.Context, thirdIDs []string) ([]StatusResult, error) {
	return c.statusQuery(ctx, "order/getPayStatus", thirdIDs)
}

func (c *Client) GetOrderStatus(ctx context.Context, thirdIDs []string) ([]StatusResult, error) {
	return c.statusQuery(ctx, "order/getOrderStatus", thirdIDs)
}

func (c *Client) statusQuery(ctx context.Context, path string, thirdIDs []string) ([]StatusResult, error) {
	var result []StatusResult
	fields := map[string]any{"third_ids": thirdIDs}
	if err := c.post(ctx, path, fields, &result, true); err != nil {
		return nil, err
	}
	return result, nil
}

// post performs one signed call, refreshing the token once if the remote
// rejects it. The second auth rejection is surfaced as AuthFailure.
func (c *Client) post(ctx context.Context, path string, fields map[string]any, result any, authed bool) error {
	reauthed := false
	for {
		var token string
		if authed {
			var err error
			token, err = c.ensureToken(ctx)
			if err != nil {
				return err
			}
		}

		resp, err := c.do(ctx, path, fields, token)
		if err != nil {
			return err
		}

		status := resp.StatusCode()
		if authed && !reauthed && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
			log.Warn().Str("path", path).Int("status", status).Msg("manufacturer token rejected, re-authenticating")
			c.invalidateToken()
			reauthed = true
			continue
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return apperrors.AuthFailure(fmt.Errorf("token rejected with status %d", status))
		}
		if status >= http.StatusBadRequest {
			return apperrors.RemoteRejected(status, fmt.Sprintf("%s returned status %d", path, status))
		}

		env := resp.Result().(*envelope)
		if env.Code != remoteOK {
			return apperrors.RemoteRejected(env.Code, env.Msg)
		}
		if result != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, result); err != nil {
				return fmt.Errorf("decode %s response: %w", path, err)
			}
		}
		return nil
	}
}

func (c *Client) do(ctx context.Context, path string, fields map[string]any, token string) (*resty.Response, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("req_source", c.opts.ReqSource).
		SetHeader("sign", Sign(fields, c.opts.SystemName, c.opts.SignSecret)).
		SetBody(fields).
		SetResult(&envelope{})
	if token != "" {
		req.SetHeader("Authorization", token)
	}

	start := time.Now()
	resp, err := req.Post(path)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("path", path).Dur("elapsed", elapsed).Msg("manufacturer request failed")
		if isTimeout(err) {
			return nil, apperrors.RemoteTimeout(err)
		}
		return nil, apperrors.RemoteTimeout(fmt.Errorf("transport error: %w", err))
	}

	log.Debug().Str("path", path).Int("status", resp.StatusCode()).Dur("elapsed", elapsed).Msg("manufacturer request")
	return resp, nil
}

// ensureToken returns a cached token while it is still within its validity
// window, logging in again otherwise.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Since(c.tokenFetched) < config.TokenValidity {
		return c.token, nil
	}

	fields := map[string]any{
		"account":  c.opts.Account,
		"password": c.opts.Password,
	}

	resp, err := c.do(ctx, "user/login", fields, "")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", apperrors.AuthFailure(fmt.Errorf("login returned status %d", resp.StatusCode()))
	}

	env := resp.Result().(*envelope)
	if env.Code != remoteOK {
		return "", apperrors.AuthFailure(fmt.Errorf("login rejected: %s", env.Msg))
	}

	var data loginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", apperrors.AuthFailure(fmt.Errorf("decode login response: %w", err))
	}
	if data.Token == "" {
		return "", apperrors.AuthFailure(errors.New("login returned empty token"))
	}

	c.token = data.Token
	c.tokenFetched = time.Now()
	log.Info().Msg("manufacturer token refreshed")
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
