// Package remote talks to the remote account service: state reads,
// media downloads and corrective profile writes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/internal/logger"
)

// Client is a bearer-authenticated client for the account service. All
// calls carry a bounded timeout; the zero value is not usable, construct
// with NewClient.
type Client struct {
	http    *http.Client
	apiBase string
	cdnBase string
	log     logger.Logger
}

// Options configures a Client.
type Options struct {
	APIBaseURL string
	CDNBaseURL string
	Timeout    time.Duration
	Logger     logger.Logger
}

// NewClient creates an account-service client with pooled connections.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewSimple()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		apiBase: opts.APIBaseURL,
		cdnBase: opts.CDNBaseURL,
		log:     opts.Logger.WithField("component", "remote"),
	}
}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, credential, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return externalErr("build request", err)
	}
	req.Header.Set("Authorization", credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return externalErr("call account service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperrors.New(apperrors.ErrorTypeUnauthenticated, apperrors.ServiceAccount,
			"account service rejected the credential").
			WithSolutions("check that the credential is current and has not been revoked")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.New(apperrors.ErrorTypeExternalService, apperrors.ServiceAccount,
			fmt.Sprintf("account service returned %d for %s", resp.StatusCode, path)).
			WithCause(string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return externalErr("decode account service response", err)
	}
	return nil
}

// patch issues an authenticated PATCH with a JSON body and returns the
// raw response; callers own challenge detection.
func (c *Client) patch(ctx context.Context, credential, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, externalErr("encode patch body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.apiBase+path, bytes.NewReader(raw))
	if err != nil {
		return nil, externalErr("build request", err)
	}
	req.Header.Set("Authorization", credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, externalErr("call account service", err)
	}
	return resp, nil
}

func externalErr(op string, err error) *apperrors.EngineError {
	return apperrors.New(apperrors.ErrorTypeExternalService, apperrors.ServiceAccount,
		fmt.Sprintf("failed to %s", op)).WithCause(err.Error())
}
