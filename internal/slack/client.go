package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const defaultBaseURL = "https://slack.com/api"

// Client is a minimal Slack Web API client covering the calls the bot needs:
// auth.test, chat.postMessage and Socket Mode connection setup.
type Client struct {
	http     *http.Client
	baseURL  string
	botToken string
	appToken string
}

func NewClient(httpClient *http.Client, baseURL, botToken, appToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: strings.TrimSpace(botToken),
		appToken: strings.TrimSpace(appToken),
	}
}

type AuthTestResult struct {
	TeamID string
	UserID string
	BotID  string
	Team   string
	User   string
}

type authTestResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TeamID string `json:"team_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	BotID  string `json:"bot_id,omitempty"`
	Team   string `json:"team,omitempty"`
	User   string `json:"user,omitempty"`
}

// AuthTest validates the bot token and returns the bot's own identity.
func (c *Client) AuthTest(ctx context.Context) (AuthTestResult, error) {
	if c == nil {
		return AuthTestResult{}, fmt.Errorf("slack client is not initialized")
	}
	body, status, _, err := c.postAuthJSON(ctx, c.botToken, "/auth.test", nil)
	if err != nil {
		return AuthTestResult{}, err
	}
	if status < 200 || status >= 300 {
		return AuthTestResult{}, fmt.Errorf("slack auth.test http %d", status)
	}
	var out authTestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return AuthTestResult{}, err
	}
	if !out.OK {
		code := strings.TrimSpace(out.Error)
		if code == "" {
			code = "unknown_error"
		}
		return AuthTestResult{}, fmt.Errorf("slack auth.test failed: %s", code)
	}
	return AuthTestResult{
		TeamID: strings.TrimSpace(out.TeamID),
		UserID: strings.TrimSpace(out.UserID),
		BotID:  strings.TrimSpace(out.BotID),
		Team:   strings.TrimSpace(out.Team),
		User:   strings.TrimSpace(out.User),
	}, nil
}

// PostMessage delivers text to a channel, retrying rate limits and 5xx
// answers up to three attempts. Retry-After from the platform wins over the
// built-in backoff.
func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("slack client is not initialized")
	}
	token := strings.TrimSpace(c.botToken)
	if token == "" {
		return fmt.Errorf("slack token is required")
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is required")
	}

	type requestBody struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
	}
	type responseBody struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}

	payload := requestBody{Channel: channelID, Text: text}
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, status, headers, err := c.postAuthJSON(ctx, token, "/chat.postMessage", payload)
		if err != nil {
			lastErr = err
			status = 0
			headers = http.Header{}
		} else {
			var out responseBody
			if parseErr := json.Unmarshal(body, &out); parseErr != nil {
				lastErr = parseErr
			} else if status < 200 || status >= 300 {
				lastErr = fmt.Errorf("slack chat.postMessage http %d", status)
			} else if out.OK {
				return nil
			} else {
				code := strings.TrimSpace(out.Error)
				if code == "" {
					code = "unknown_error"
				}
				lastErr = fmt.Errorf("slack chat.postMessage failed: %s", code)
			}
		}

		if attempt >= maxAttempts {
			break
		}
		if status == 0 {
			status = http.StatusBadGateway
		}
		wait, retryable := retryDelay(status, headers, attempt)
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

type openConnectionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	URL   string `json:"url,omitempty"`
}

// OpenSocketURL asks the platform for a fresh Socket Mode websocket URL.
func (c *Client) OpenSocketURL(ctx context.Context) (string, error) {
	if c == nil {
		return "", fmt.Errorf("slack client is not initialized")
	}
	body, status, _, err := c.postAuthJSON(ctx, c.appToken, "/apps.connections.open", nil)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("slack apps.connections.open http %d", status)
	}
	var out openConnectionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if !out.OK {
		code := strings.TrimSpace(out.Error)
		if code == "" {
			code = "unknown_error"
		}
		return "", fmt.Errorf("slack apps.connections.open failed: %s", code)
	}
	url := strings.TrimSpace(out.URL)
	if url == "" {
		return "", fmt.Errorf("slack apps.connections.open returned empty url")
	}
	return url, nil
}

// ConnectSocket opens the Socket Mode websocket.
func (c *Client) ConnectSocket(ctx context.Context) (*websocket.Conn, error) {
	url, err := c.OpenSocketURL(ctx)
	if err != nil {
		return nil, err
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) postAuthJSON(ctx context.Context, token, path string, payload any) ([]byte, int, http.Header, error) {
	if c == nil || c.http == nil {
		return nil, 0, nil, fmt.Errorf("slack client is not initialized")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, 0, nil, fmt.Errorf("slack token is required")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, resp.Header, readErr
	}
	return raw, resp.StatusCode, resp.Header, nil
}

func retryDelay(status int, headers http.Header, attempt int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := strings.TrimSpace(headers.Get("Retry-After"))
		if retryAfter == "" {
			return 1 * time.Second, true
		}
		secs, err := strconv.Atoi(retryAfter)
		if err != nil || secs <= 0 {
			return 1 * time.Second, true
		}
		return time.Duration(secs) * time.Second, true
	case status >= 500 && status <= 599:
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	default:
		return 0, false
	}
}

// SleepWithContext waits for d unless the context ends first.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	return sleepWithContext(ctx, d)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
