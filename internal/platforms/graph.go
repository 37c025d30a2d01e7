package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type GraphConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// GraphClient is a small client for the Meta Graph API shared by the
// Facebook and Instagram adapters.
type GraphClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	retries int
}

// APIError is a non-retryable rejection from the Graph API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api %d: %s", e.Status, e.Message)
}

func NewGraphClient(cfg GraphConfig) (*GraphClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("graph api base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &GraphClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

// Post sends params as JSON to path and returns the "id" of the created
// object. Transport errors and 5xx responses are retried; 4xx are not.
func (c *GraphClient) Post(ctx context.Context, path, token string, params map[string]any) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("graph marshal request: %w", err)
	}

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/"+strings.TrimPrefix(path, "/"), bytes.NewReader(body))
		if err != nil {
			cancel()
			return "", fmt.Errorf("graph build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := c.client.Do(httpReq)
		if err != nil {
			cancel()
			lastErr = err
		} else {
			id, parseErr := decodeCreated(resp)
			resp.Body.Close()
			cancel()
			if parseErr == nil {
				return id, nil
			}
			var apiErr *APIError
			if errors.As(parseErr, &apiErr) {
				return "", apiErr
			}
			lastErr = parseErr
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return "", fmt.Errorf("graph request failed: %w", lastErr)
}

type graphEnvelope struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func decodeCreated(resp *http.Response) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("graph read response: %w", err)
	}
	var env graphEnvelope
	_ = json.Unmarshal(raw, &env)

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("graph unavailable: %s", resp.Status)
	}
	if resp.StatusCode >= 400 {
		msg := resp.Status
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return "", &APIError{Status: resp.StatusCode, Message: msg}
	}
	if env.ID == "" {
		return "", &APIError{Status: resp.StatusCode, Message: "response carried no id"}
	}
	return env.ID, nil
}

func stringField(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// FacebookAdapter posts to a page feed.
type FacebookAdapter struct {
	Graph  *GraphClient
	PageID string
	Token  string
}

func (a *FacebookAdapter) Publish(ctx context.Context, req Request) (Result, error) {
	params := map[string]any{}
	if msg := stringField(req.Payload, "message", "text", "caption"); msg != "" {
		params["message"] = msg
	}
	if link := stringField(req.Payload, "link", "link_url"); link != "" {
		params["link"] = link
	}
	if len(params) == 0 {
		return Failed("facebook: payload has neither message nor link"), nil
	}
	id, err := a.Graph.Post(ctx, a.PageID+"/feed", a.Token, params)
	if err != nil {
		return Failed("facebook: " + err.Error()), nil
	}
	return Published(id), nil
}

// InstagramAdapter creates a media container and publishes it.
type InstagramAdapter struct {
	Graph     *GraphClient
	AccountID string
	Token     string
}

func (a *InstagramAdapter) Publish(ctx context.Context, req Request) (Result, error) {
	imageURL := stringField(req.Payload, "image_url", "media_url")
	if imageURL == "" {
		return Failed("instagram: image_url is required"), nil
	}
	params := map[string]any{"image_url": imageURL}
	if caption := stringField(req.Payload, "caption", "text"); caption != "" {
		params["caption"] = caption
	}
	creationID, err := a.Graph.Post(ctx, a.AccountID+"/media", a.Token, params)
	if err != nil {
		return Failed("instagram: create media: " + err.Error()), nil
	}
	id, err := a.Graph.Post(ctx, a.AccountID+"/media_publish", a.Token, map[string]any{"creation_id": creationID})
	if err != nil {
		return Failed("instagram: publish media: " + err.Error()), nil
	}
	return Published(id), nil
}
