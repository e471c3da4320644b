// Package solver orchestrates solving anti-automation challenges
// through a CapSolver-compatible solving service.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/internal/logger"
	"github.com/yairfalse/restitch/internal/remote"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 60
)

// Client submits solve tasks and polls for their results.
type Client struct {
	http         *http.Client
	baseURL      string
	log          logger.Logger
	pollInterval time.Duration
	maxPolls     int
	pick         func(n int) int
}

// Options configures a solver client.
type Options struct {
	APIBaseURL string
	Timeout    time.Duration
	Logger     logger.Logger
}

// NewClient creates a solver client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewSimple()
	}
	return &Client{
		http:         &http.Client{Timeout: opts.Timeout},
		baseURL:      opts.APIBaseURL,
		log:          opts.Logger.WithField("component", "solver"),
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
		pick:         rand.Intn,
	}
}

type taskRequest struct {
	ClientKey string   `json:"clientKey"`
	Task      taskSpec `json:"task"`
}

type taskSpec struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
	Proxy      string `json:"proxy"`
}

type taskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           string `json:"taskId"`
}

type resultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

type resultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// Solve submits the challenge to the solving service and polls until a
// solved token is available, the service reports failure, the poll
// budget is exhausted, or ctx is cancelled.
func (c *Client) Solve(ctx context.Context, ch remote.Challenge, clientKey string, proxies []string) (string, error) {
	proxy, err := c.drawProxy(proxies)
	if err != nil {
		return "", err
	}

	taskID, err := c.createTask(ctx, ch, clientKey, proxy)
	if err != nil {
		// A proxy-specific rejection gets exactly one retry with a
		// freshly drawn proxy; the pool is validated again on the
		// second draw.
		if !isProxyError(err) {
			return "", err
		}
		c.log.WithField("proxy", proxy).Warn("solve task rejected for proxy, retrying with a fresh draw")
		proxy, perr := c.drawProxy(proxies)
		if perr != nil {
			return "", perr
		}
		taskID, err = c.createTask(ctx, ch, clientKey, proxy)
		if err != nil {
			return "", err
		}
	}

	return c.pollResult(ctx, clientKey, taskID)
}

// drawProxy picks a proxy uniformly at random. An empty pool is a
// configuration error raised before any network call.
func (c *Client) drawProxy(proxies []string) (string, error) {
	if len(proxies) == 0 {
		return "", apperrors.New(apperrors.ErrorTypeNoProxies, apperrors.ServiceSolver,
			"no proxies configured").
			WithSolutions("add at least one host:port proxy to the proxy pool before restoring")
	}
	return strings.TrimSpace(proxies[c.pick(len(proxies))]), nil
}

func (c *Client) createTask(ctx context.Context, ch remote.Challenge, clientKey, proxy string) (string, error) {
	challengeType := ch.Type
	if challengeType == "" {
		challengeType = "HCaptchaTask"
	}
	var out taskResponse
	err := c.post(ctx, "/createTask", taskRequest{
		ClientKey: clientKey,
		Task: taskSpec{
			Type:       challengeType,
			WebsiteURL: ch.TargetURL,
			WebsiteKey: ch.SiteKey,
			Proxy:      proxy,
		},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ErrorID != 0 {
		return "", apperrors.New(apperrors.ErrorTypeExternalService, apperrors.ServiceSolver,
			"solving service rejected the task").WithCause(out.ErrorDescription)
	}
	return out.TaskID, nil
}

func (c *Client) pollResult(ctx context.Context, clientKey, taskID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return "", apperrors.New(apperrors.ErrorTypeTimeout, apperrors.ServiceSolver,
				"challenge solve cancelled").WithCause(ctx.Err().Error())
		case <-ticker.C:
		}

		var out resultResponse
		if err := c.post(ctx, "/getTaskResult", resultRequest{ClientKey: clientKey, TaskID: taskID}, &out); err != nil {
			return "", err
		}
		if out.ErrorID != 0 {
			return "", apperrors.New(apperrors.ErrorTypeExternalService, apperrors.ServiceSolver,
				"solving service reported an error").WithCause(out.ErrorDescription)
		}
		switch out.Status {
		case "ready":
			return out.Solution.GRecaptchaResponse, nil
		case "failed":
			return "", apperrors.New(apperrors.ErrorTypeExternalService, apperrors.ServiceSolver,
				"solving service failed to solve the challenge")
		}
		// "processing": keep polling.
	}

	return "", apperrors.New(apperrors.ErrorTypeTimeout, apperrors.ServiceSolver,
		fmt.Sprintf("challenge not solved after %d polls", c.maxPolls))
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return solverErr("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return solverErr("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return solverErr("call solving service", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return solverErr("call solving service", fmt.Errorf("status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return solverErr("decode solving service response", err)
	}
	return nil
}

func isProxyError(err error) bool {
	var ee *apperrors.EngineError
	if !errors.As(err, &ee) {
		return false
	}
	return ee.Type == apperrors.ErrorTypeExternalService && strings.Contains(strings.ToLower(ee.Cause), "proxy")
}

func solverErr(op string, err error) *apperrors.EngineError {
	return apperrors.New(apperrors.ErrorTypeExternalService, apperrors.ServiceSolver,
		fmt.Sprintf("failed to %s", op)).WithCause(err.Error())
}
