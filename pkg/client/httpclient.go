package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Identity headers, mirrored from pkg/http to keep this package free of
// server dependencies.
const (
	headerHolderID   = "X-Holder-ID"
	headerHolderName = "X-Holder-Name"
	headerRole       = "X-Role"
)

type HttpClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHttpClient(baseURL string) *HttpClient {
	return &HttpClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Identity is who the gateway says is calling.
type Identity struct {
	HolderID string
	Name     string
	Admin    bool
}

func (i Identity) headers() map[string]string {
	h := map[string]string{headerHolderID: i.HolderID}
	if i.Name != "" {
		h[headerHolderName] = i.Name
	}
	if i.Admin {
		h[headerRole] = "admin"
	}
	return h
}

type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) DecodeJSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// DecodeData unwraps the {"data": ...} envelope of a success response.
func (r *Response) DecodeData(target any) error {
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(r.Body, &envelope); err != nil {
		return err
	}
	return json.Unmarshal(envelope.Data, target)
}

func (c *HttpClient) Do(ctx context.Context, method, path string, body any, headers map[string]string) (*Response, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Response: resp,
		Body:     respBody,
	}, nil
}

func (c *HttpClient) WaitForHealthy(maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		resp, err := c.HTTPClient.Get(c.BaseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		<-ticker.C
	}

	return fmt.Errorf("service did not become healthy within %v", maxWait)
}

// GetErrorCode returns the AppError code of a failed response.
func GetErrorCode(resp *Response) string {
	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := resp.DecodeJSON(&errResp); err != nil {
		return ""
	}
	return errResp.Code
}
