package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// LineClient calls the LINE Messaging API.
type LineClient struct {
	http *resty.Client
}

// NewLineClient returns a client authenticated with a channel access token.
func NewLineClient(baseURL, accessToken string, timeout time.Duration) *LineClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &LineClient{http: c}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// Send pushes a text message. A 409 for a request carrying a retry key means
// an earlier attempt was already accepted and counts as success.
func (c *LineClient) Send(ctx context.Context, m Message) error {
	req := c.http.R().
		SetContext(ctx).
		SetBody(pushRequest{To: m.To, Messages: []textMessage{{Type: "text", Text: m.Text}}})
	if m.RetryKey != "" {
		req.SetHeader("X-Line-Retry-Key", m.RetryKey)
	}
	resp, err := req.Post("/v2/bot/message/push")
	if err == nil && m.RetryKey != "" && resp.StatusCode() == http.StatusConflict {
		return nil
	}
	return check("push", resp, err)
}

// SetChannelMenu links a rich menu to the user.
func (c *LineClient) SetChannelMenu(ctx context.Context, to, menuID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"userId": to, "richMenuId": menuID}).
		Post("/v2/bot/user/{userId}/richmenu/{richMenuId}")
	return check("rich_menu", resp, err)
}

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if resp.IsError() {
		return &Error{Op: op, Status: resp.StatusCode(), Err: errors.New(strings.TrimSpace(resp.String()))}
	}
	return nil
}
