package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
)

const maxChatResponse = 4096

type ChatConfig struct {
	// BaseURL defaults to https://api.ultramsg.com.
	BaseURL    string
	InstanceID string
	Token      string
	ToNumber   string
}

// ChatChannel posts notifications to an UltraMsg-compatible chat API.
type ChatChannel struct {
	cfg    ChatConfig
	client *http.Client
}

func NewChatChannel(cfg ChatConfig, client *http.Client) *ChatChannel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.ultramsg.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{}
	}
	return &ChatChannel{cfg: cfg, client: client}
}

func (c *ChatChannel) Name() string { return ChannelChat }

func (c *ChatChannel) Configured() bool {
	return c.cfg.InstanceID != "" && c.cfg.Token != "" && c.cfg.ToNumber != ""
}

type chatResponse struct {
	Sent  any `json:"sent"`
	ID    any `json:"id"`
	Error any `json:"error"`
}

func (c *ChatChannel) Send(ctx context.Context, msg Message) error {
	endpoint := c.cfg.BaseURL + "/" + url.PathEscape(c.cfg.InstanceID) + "/messages/chat"

	form := url.Values{}
	form.Set("token", c.cfg.Token)
	form.Set("to", "+"+strings.TrimPrefix(strings.TrimSpace(c.cfg.ToNumber), "+"))
	form.Set("body", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		// Do wraps the URL, which carries no secrets here.
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxChatResponse))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http_error: %d", resp.StatusCode)
	}

	var r chatResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return fmt.Errorf("api_error: undecodable response: %s", truncate(string(body), 200))
	}
	if !sentTrue(r.Sent) {
		return fmt.Errorf("api_error: %s", truncate(strings.TrimSpace(string(body)), 200))
	}
	return nil
}

// sentTrue accepts "true" and true; UltraMsg uses the string form.
func sentTrue(v any) bool {
	switch s := v.(type) {
	case string:
		return strings.EqualFold(s, "true")
	case bool:
		return s
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
