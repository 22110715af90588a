package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	completePath = "/complete"
	apiTimeout   = 30 * time.Second
)

// Client reports finished sessions to the recruitment platform
type Client struct {
	http *resty.Client
	log  *zap.SugaredLogger
}

// NewClient creates a platform client. token is sent as a bearer token when set.
func NewClient(baseURL, token string, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(apiTimeout)
	client.SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &Client{http: client, log: log}
}

type completeRequest struct {
	SessionID      string `json:"session_id"`
	CompletionCode string `json:"completion_code"`
}

// NotifyComplete tells the platform that a participant finished
func (c *Client) NotifyComplete(ctx context.Context, sessionID, completionCode string) error {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(completeRequest{SessionID: sessionID, CompletionCode: completionCode}).
		Post(completePath)
	if err != nil {
		c.log.Warnw("platform request failed", "session", sessionID, "elapsed", time.Since(start), "error", err)
		return err
	}

	if resp.IsError() {
		body := resp.String()
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		return fmt.Errorf("platform returned status %d: %s", resp.StatusCode(), body)
	}

	c.log.Infow("platform notified", "session", sessionID, "elapsed", time.Since(start))
	return nil
}
