package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

const defaultHTTPTimeoutSeconds = 30

// HTTPRequestExecutor performs an outbound HTTP request. URL, headers and
// body support templating over the execution context.
type HTTPRequestExecutor struct {
	client *http.Client
}

// NewHTTPRequestExecutor creates the HTTP request executor.
func NewHTTPRequestExecutor() *HTTPRequestExecutor {
	return &HTTPRequestExecutor{
		client: &http.Client{},
	}
}

func (e *HTTPRequestExecutor) Type() string {
	return models.NodeTypeHTTPRequest
}

func (e *HTTPRequestExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL. Supports templating, e.g. https://api.example.com/orders/{{.data.order.id}}",
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
				"default": "GET",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers. Values support templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating.",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds.",
				"default":     defaultHTTPTimeoutSeconds,
			},
		},
		"required": []string{"url"},
	}
}

type httpRequestConfig struct {
	url     string
	method  string
	headers map[string]string
	body    string
	timeout time.Duration
}

func parseHTTPRequestConfig(config map[string]any) (*httpRequestConfig, error) {
	parsed := &httpRequestConfig{
		method:  http.MethodGet,
		headers: make(map[string]string),
		timeout: defaultHTTPTimeoutSeconds * time.Second,
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	parsed.url = url

	if method, ok := config["method"].(string); ok {
		parsed.method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if strVal, ok := value.(string); ok {
				parsed.headers[key] = strVal
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		parsed.body = body
	}

	if timeout, ok := config["timeout"].(float64); ok && timeout > 0 {
		parsed.timeout = time.Duration(timeout) * time.Second
	}

	return parsed, nil
}

func (e *HTTPRequestExecutor) Execute(ctx context.Context, executionCtx *models.ExecutionContext, node *models.WorkflowNode) (map[string]any, error) {
	config, err := parseHTTPRequestConfig(node.Config)
	if err != nil {
		return nil, err
	}

	renderedURL, err := template.RenderWithContext(config.url, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL template: %w", err)
	}

	urlStr, ok := renderedURL.(string)
	if !ok {
		return nil, errors.New("URL template must render to a string")
	}

	var requestBody io.Reader

	if config.body != "" {
		rendered, err := template.RenderWithContext(config.body, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		switch value := rendered.(type) {
		case string:
			requestBody = strings.NewReader(value)
		default:
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to encode rendered body: %w", err)
			}

			requestBody = strings.NewReader(string(encoded))
		}
	}

	requestCtx, cancel := context.WithTimeout(ctx, config.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, config.method, urlStr, requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range config.headers {
		rendered, err := template.RenderWithContext(value, executionCtx)
		if err != nil {
			request.Header.Set(key, value)

			continue
		}

		if strVal, ok := rendered.(string); ok {
			request.Header.Set(key, strVal)
		} else {
			request.Header.Set(key, value)
		}
	}

	response, err := e.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsedBody any

	if err := json.Unmarshal(responseBody, &parsedBody); err != nil {
		parsedBody = string(responseBody)
	}

	responseHeaders := make(map[string]string, len(response.Header))
	for key := range response.Header {
		responseHeaders[key] = response.Header.Get(key)
	}

	if response.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("HTTP request returned %d for %s %s", response.StatusCode, config.method, urlStr)
	}

	return map[string]any{
		"status_code": response.StatusCode,
		"body":        parsedBody,
		"headers":     responseHeaders,
	}, nil
}
