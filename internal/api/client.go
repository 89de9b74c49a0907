package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client talks to the assessment backend. It attaches the bearer credential
// and a fresh X-Request-ID to every call and normalizes failures into *Error.
type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
	log     zerolog.Logger
}

// NewClient creates a Client for the backend at baseURL. token is consulted
// per request so a re-login picks up the new credential; it may return ""
// for unauthenticated calls.
func NewClient(baseURL string, timeout time.Duration, token func() string, log zerolog.Logger) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		token:   token,
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

// SetTransport overrides the underlying round tripper. Test hook.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.Transport = rt
}

// Login exchanges credentials for a bearer token. Distinct backend
// rejections (unknown user, bad password, inactive user) surface as *Error
// with the corresponding status and detail.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/login", LoginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// StartTest starts or resumes the user's attempt at a test. Idempotent
// server-side: an existing session is returned as-is.
func (c *Client) StartTest(ctx context.Context, testID, userID int64) (*SessionSnapshot, error) {
	var out SessionSnapshot
	path := fmt.Sprintf("/start-test/%d/%d", testID, userID)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionInfo fetches the timing fields for a session. A 404 means the
// session is gone and the attempt cannot continue.
func (c *Client) SessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var out SessionInfo
	if err := c.do(ctx, http.MethodGet, "/session/"+sessionID+"/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentQuestion fetches the question at the session's current index.
//
// The backend signals completion on this endpoint with a detail body, in one
// case under HTTP 200, so the response is decoded into a superset and the
// detail field checked before the payload is trusted.
func (c *Client) CurrentQuestion(ctx context.Context, sessionID string) (*Question, error) {
	var out struct {
		Question
		Detail string `json:"detail"`
	}
	op := "GET /session/{id}/question"

	if err := c.do(ctx, http.MethodGet, "/session/"+sessionID+"/question", nil, &out); err != nil {
		return nil, err
	}
	if out.Detail != "" {
		return nil, &Error{Op: op, StatusCode: http.StatusOK, Detail: out.Detail}
	}
	return &out.Question, nil
}

// SubmitAnswer sends the answer for the session's current question. Never
// retried automatically by any caller: the write is not assumed idempotent.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID string, sub AnswerSubmit) error {
	return c.do(ctx, http.MethodPost, "/session/"+sessionID+"/submit", sub, nil)
}

// do performs one JSON exchange. Any non-2xx response or transport failure
// is returned as *Error; 2xx bodies are decoded into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}

	reqID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("request_id", reqID).Str("op", op).Msg("No response from server")
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := decodeDetail(resp.Body)
		c.log.Debug().
			Str("request_id", reqID).
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("detail", detail).
			Msg("Backend rejected request")
		return &Error{Op: op, StatusCode: resp.StatusCode, Detail: detail}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// decodeDetail extracts the backend's {"detail": "..."} error body. A body
// that is not in that shape yields an empty detail, which classifies as a
// generic rejection.
func decodeDetail(r io.Reader) string {
	var body struct {
		Detail string `json:"detail"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Detail
}
