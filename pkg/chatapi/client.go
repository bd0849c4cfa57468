package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/internal/errors"
	"chatwire/pkg/circuitbreaker"
)

// ClientConfig configures the persistence API client.
type ClientConfig struct {
	BaseURL            string
	AuthToken          string
	Timeout            time.Duration
	BreakerMaxFailures uint32
	BreakerResetAfter  time.Duration
}

type apiClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	breaker   *circuitbreaker.CircuitBreaker
}

// NewClient creates a persistence API client guarded by a circuit breaker.
func NewClient(cfg ClientConfig, logger *logrus.Logger) Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerResetAfter == 0 {
		cfg.BreakerResetAfter = 30 * time.Second
	}

	return &apiClient{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: cfg.Timeout},
		breaker:   circuitbreaker.NewWithLogger("chatapi", cfg.BreakerMaxFailures, cfg.BreakerResetAfter, logger),
	}
}

func (c *apiClient) EditMessage(ctx context.Context, messageID int64, content string) (*EditResponse, error) {
	endpoint := fmt.Sprintf("/edit-message/%d/", messageID)
	payload := map[string]interface{}{
		"content": content,
	}

	var result EditResponse
	if err := c.do(ctx, http.MethodPut, endpoint, payload, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return &result, errors.NewPersistenceError(endpoint, http.StatusOK,
			fmt.Errorf("edit rejected: %s", result.Error))
	}
	return &result, nil
}

func (c *apiClient) DeleteMessage(ctx context.Context, messageID int64) (*DeleteResponse, error) {
	endpoint := fmt.Sprintf("/delete-message/%d/", messageID)

	var result DeleteResponse
	if err := c.do(ctx, http.MethodDelete, endpoint, nil, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return &result, errors.NewPersistenceError(endpoint, http.StatusOK,
			fmt.Errorf("delete rejected: %s", result.Error))
	}
	return &result, nil
}

func (c *apiClient) DeleteConversation(ctx context.Context, conversationID int64) (*DeleteResponse, error) {
	endpoint := fmt.Sprintf("/delete-conversation/%d/", conversationID)

	var result DeleteResponse
	if err := c.do(ctx, http.MethodDelete, endpoint, nil, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return &result, errors.NewPersistenceError(endpoint, http.StatusOK,
			fmt.Errorf("conversation delete rejected: %s", result.Error))
	}
	return &result, nil
}

func (c *apiClient) SearchUsers(ctx context.Context, query string) ([]UserResult, error) {
	endpoint := "/search-users/?q=" + url.QueryEscape(query)

	var result struct {
		Users []UserResult `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result.Users, nil
}

func (c *apiClient) StartConversation(ctx context.Context, userID int64) (*StartConversationResponse, error) {
	endpoint := "/start-conversation/"
	payload := map[string]interface{}{
		"user_id": userID,
	}

	var result StartConversationResponse
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return &result, errors.NewPersistenceError(endpoint, http.StatusOK,
			fmt.Errorf("start conversation rejected: %s", result.Error))
	}
	return &result, nil
}

func (c *apiClient) UploadFile(ctx context.Context, conversationID int64, fileName string, file io.Reader, content string) (*UploadResponse, error) {
	endpoint := "/upload-file/"

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read upload payload: %w", err)
	}
	if err := writer.WriteField("content", content); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := writer.WriteField("conversation_id", strconv.FormatInt(conversationID, 10)); err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload form: %w", err)
	}

	var result UploadResponse
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body.Bytes()))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		return c.send(req, endpoint, &result)
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &result, errors.NewPersistenceError(endpoint, http.StatusOK,
			fmt.Errorf("upload rejected: %s", result.Error))
	}
	return &result, nil
}

func (c *apiClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewPersistenceError("/", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.NewPersistenceError("/", resp.StatusCode,
			fmt.Errorf("health check failed with status %d", resp.StatusCode))
	}
	return nil
}

// do runs a JSON request through the circuit breaker.
func (c *apiClient) do(ctx context.Context, method, endpoint string, payload interface{}, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			jsonData, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("failed to marshal payload: %w", err)
			}
			body = bytes.NewReader(jsonData)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		return c.send(req, endpoint, result)
	})
}

func (c *apiClient) send(req *http.Request, endpoint string, result interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewPersistenceError(endpoint, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewPersistenceError(endpoint, resp.StatusCode,
			fmt.Errorf("request failed with status %d", resp.StatusCode))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) setHeaders(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Token "+c.authToken)
	}
}
