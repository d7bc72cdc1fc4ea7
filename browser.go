package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BrowserAutomator is the remote headless-browser surface the unsubscribe
// pipeline depends on. Sessions are single-use and paid; every acquired
// session must be ended on every exit path.
type BrowserAutomator interface {
	CreateSession(ctx context.Context) (string, error)
	PerformTask(ctx context.Context, sessionID, url, instruction string) (string, error)
	GetRecordings(ctx context.Context, sessionID string) ([]string, error)
	EndSession(ctx context.Context, sessionID string) error
}

// AnchorClient implements BrowserAutomator against the Anchor Browser API
type AnchorClient struct {
	baseURL        string
	apiKey         string
	sessionTimeout int
	httpClient     *http.Client
}

// NewAnchorClient creates an Anchor Browser client
func NewAnchorClient(config *AnchorConfig) *AnchorClient {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anchorbrowser.io"
	}
	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	return &AnchorClient{
		baseURL:        baseURL,
		apiKey:         config.APIKey,
		sessionTimeout: config.SessionTimeout,
		httpClient:     &http.Client{Timeout: requestTimeout},
	}
}

type anchorSessionConfig struct {
	AdblockConfig struct {
		Active bool `json:"active"`
	} `json:"adblock_config"`
	CaptchaConfig struct {
		Active bool `json:"active"`
	} `json:"captcha_config"`
	ProxyConfig struct {
		Active bool `json:"active"`
	} `json:"proxy_config"`
	Recording struct {
		Active bool `json:"active"`
	} `json:"recording"`
	Timeout int `json:"timeout"`
}

type anchorSessionResponse struct {
	ID string `json:"id"`
}

type anchorTaskRequest struct {
	URL  string `json:"url"`
	Task string `json:"task"`
}

type anchorTaskResponse struct {
	Result json.RawMessage `json:"result"`
}

type anchorRecordingsResponse struct {
	Videos []struct {
		URL string `json:"url"`
	} `json:"videos"`
}

// CreateSession requests a fresh isolated browser session with ad-blocking
// disabled and CAPTCHA solving, proxying and screen recording enabled.
func (c *AnchorClient) CreateSession(ctx context.Context) (string, error) {
	config := anchorSessionConfig{Timeout: c.sessionTimeout}
	config.CaptchaConfig.Active = true
	config.ProxyConfig.Active = true
	config.Recording.Active = true

	var response anchorSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions", config, &response); err != nil {
		return "", fmt.Errorf("failed to create browser session: %w", err)
	}
	if response.ID == "" {
		return "", fmt.Errorf("browser session response carried no session id")
	}
	return response.ID, nil
}

// PerformTask submits one natural-language instruction against a URL inside a
// session and returns the raw result text. The result is untrusted free-form
// output and must be verified downstream.
func (c *AnchorClient) PerformTask(ctx context.Context, sessionID, url, instruction string) (string, error) {
	request := anchorTaskRequest{URL: url, Task: instruction}

	var response anchorTaskResponse
	path := "/tools/perform-web-task?sessionId=" + sessionID
	if err := c.do(ctx, http.MethodPost, path, request, &response); err != nil {
		return "", fmt.Errorf("failed to run browser task: %w", err)
	}

	// The result may be a JSON string or an arbitrary structure; keep the raw
	// text either way.
	var asString string
	if err := json.Unmarshal(response.Result, &asString); err == nil {
		return asString, nil
	}
	return string(response.Result), nil
}

// GetRecordings returns recording artifact URLs for a session
func (c *AnchorClient) GetRecordings(ctx context.Context, sessionID string) ([]string, error) {
	var response anchorRecordingsResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/recordings", nil, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch session recordings: %w", err)
	}
	urls := make([]string, 0, len(response.Videos))
	for _, video := range response.Videos {
		urls = append(urls, video.URL)
	}
	return urls, nil
}

// EndSession tears down a session
func (c *AnchorClient) EndSession(ctx context.Context, sessionID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil); err != nil {
		return fmt.Errorf("failed to end browser session: %w", err)
	}
	return nil
}

func (c *AnchorClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	request.Header.Set("anchor-api-key", c.apiKey)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("%s %s returned %d: %s", method, path, response.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	if out != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
