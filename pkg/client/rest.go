package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Harris-py/codecollab-go/pkg/api"
)

// APIError is a REST failure decoded from the server's {error: string}
// payload.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
}

var ErrSessionNotFound = errors.New("api: session not found")

// APIClient consumes the CodeCollab REST surface: session management, code
// execution, and language discovery.
type APIClient struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	token string
}

// NewAPIClient builds an APIClient for the given base URL (no trailing
// slash). httpClient may be nil.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{baseURL: baseURL, http: httpClient}
}

// SetToken installs the bearer token attached to subsequent requests.
// Create and join responses carry the token for their session.
func (a *APIClient) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// CreateSession creates a session and stores its access token.
func (a *APIClient) CreateSession(ctx context.Context, req api.CreateSessionRequest) (api.SessionResponse, error) {
	var out api.SessionResponse
	if err := a.do(ctx, http.MethodPost, "/api/v1/sessions", req, &out); err != nil {
		return out, err
	}
	if out.Token != "" {
		a.SetToken(out.Token)
	}
	return out, nil
}

// JoinSession resolves a join code to a session and stores its access token.
func (a *APIClient) JoinSession(ctx context.Context, req api.JoinSessionRequest) (api.SessionResponse, error) {
	var out api.SessionResponse
	if err := a.do(ctx, http.MethodPost, "/api/v1/sessions/join", req, &out); err != nil {
		return out, err
	}
	if out.Token != "" {
		a.SetToken(out.Token)
	}
	return out, nil
}

// GetSession fetches one session's metadata.
func (a *APIClient) GetSession(ctx context.Context, id string) (api.Session, error) {
	var out api.Session
	err := a.do(ctx, http.MethodGet, "/api/v1/sessions/"+id, nil, &out)
	return out, err
}

// UpdateSession patches session metadata.
func (a *APIClient) UpdateSession(ctx context.Context, id string, req api.UpdateSessionRequest) (api.Session, error) {
	var out api.Session
	err := a.do(ctx, http.MethodPatch, "/api/v1/sessions/"+id, req, &out)
	return out, err
}

// DeleteSession removes a session.
func (a *APIClient) DeleteSession(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/api/v1/sessions/"+id, nil, nil)
}

// SessionHistory fetches the session's past executions.
func (a *APIClient) SessionHistory(ctx context.Context, id string) (api.HistoryResponse, error) {
	var out api.HistoryResponse
	err := a.do(ctx, http.MethodGet, "/api/v1/sessions/"+id+"/history", nil, &out)
	return out, err
}

// RunCode executes code outside a realtime session.
func (a *APIClient) RunCode(ctx context.Context, req api.RunCodeRequest) (api.RunCodeResponse, error) {
	var out api.RunCodeResponse
	err := a.do(ctx, http.MethodPost, "/api/v1/execute", req, &out)
	return out, err
}

// ValidateCode checks code without executing it.
func (a *APIClient) ValidateCode(ctx context.Context, req api.ValidateCodeRequest) (api.ValidateCodeResponse, error) {
	var out api.ValidateCodeResponse
	err := a.do(ctx, http.MethodPost, "/api/v1/validate", req, &out)
	return out, err
}

// Languages lists the supported execution languages.
func (a *APIClient) Languages(ctx context.Context) (api.LanguagesResponse, error) {
	var out api.LanguagesResponse
	err := a.do(ctx, http.MethodGet, "/api/v1/languages", nil, &out)
	return out, err
}

func (a *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	a.mu.Lock()
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	a.mu.Unlock()

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		msg := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, msg)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}
