package roboflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civicrezo/inference-gateway/internal/logging"
)

// Client exposes the subset of the inference server used by the gateway.
type Client interface {
	RunWorkflow(ctx context.Context, imageSource string, useCache bool) (json.RawMessage, error)
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL    string
	APIKey     string
	Workspace  string
	WorkflowID string
	Timeout    time.Duration
}

// HTTPClient calls a locally-running Roboflow inference server over HTTP.
// It carries no per-request state and is safe for concurrent reuse.
type HTTPClient struct {
	opts   Options
	client *http.Client
	logger *zap.Logger
}

// NewHTTPClient constructs a workflow client from explicit configuration.
func NewHTTPClient(opts Options, logger *zap.Logger) *HTTPClient {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("roboflow_client"),
	}
}

type imageInput struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type workflowRequest struct {
	APIKey   string                `json:"api_key"`
	Inputs   map[string]imageInput `json:"inputs"`
	UseCache bool                  `json:"use_cache"`
}

type workflowResponse struct {
	Outputs json.RawMessage `json:"outputs"`
}

// RunWorkflow executes the configured workflow against an image reference and
// returns the raw outputs array for downstream normalization.
func (c *HTTPClient) RunWorkflow(ctx context.Context, imageSource string, useCache bool) (json.RawMessage, error) {
	payload := workflowRequest{
		APIKey: c.opts.APIKey,
		Inputs: map[string]imageInput{
			"image": {Type: sourceType(imageSource), Value: imageSource},
		},
		UseCache: useCache,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, logging.NewOperationError("roboflow.encode_request", "", err)
	}

	url := fmt.Sprintf("%s/infer/workflows/%s/%s",
		strings.TrimRight(c.opts.BaseURL, "/"), c.opts.Workspace, c.opts.WorkflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, logging.NewOperationError("roboflow.build_request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError("roboflow.run_workflow", "", err)
		c.logger.Error("workflow call failed", zap.Error(wrapped), zap.String("url", url))
		return nil, wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("inference server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		wrapped := logging.NewOperationError("roboflow.run_workflow", "", err)
		c.logger.Error("workflow call rejected", zap.Error(wrapped), zap.Int("status", resp.StatusCode))
		return nil, wrapped
	}

	var decoded workflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		wrapped := logging.NewOperationError("roboflow.decode_response", "", err)
		c.logger.Error("workflow response undecodable", zap.Error(wrapped))
		return nil, wrapped
	}
	return decoded.Outputs, nil
}

// sourceType mirrors how the inference SDK types its image inputs: anything
// addressable over HTTP is a url, everything else is treated as inline data.
func sourceType(source string) string {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return "url"
	}
	return "base64"
}
