package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Admin surface: thin wrappers over the backend's console endpoints. These
// hold no client-side state; every call reads or mutates the server directly.

// ListTests returns all tests.
func (c *Client) ListTests(ctx context.Context) ([]Test, error) {
	var out []Test
	if err := c.do(ctx, http.MethodGet, "/admin/tests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveTest returns the currently activated test, or nil if none is active.
func (c *Client) ActiveTest(ctx context.Context) (*Test, error) {
	var out Test
	err := c.do(ctx, http.MethodGet, "/admin/active-test", nil, &out)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// CreateTest creates a new test definition.
func (c *Client) CreateTest(ctx context.Context, in TestCreate) (*Test, error) {
	var out Test
	if err := c.do(ctx, http.MethodPost, "/admin/create-test", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivateTest marks a test as the one users are served.
func (c *Client) ActivateTest(ctx context.Context, testID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/admin/test/%d/activate", testID), nil, nil)
}

// DeactivateTest clears a test's active flag.
func (c *Client) DeactivateTest(ctx context.Context, testID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/admin/test/%d/deactivate", testID), nil, nil)
}

// DeleteTest removes a test and its questions.
func (c *Client) DeleteTest(ctx context.Context, testID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/admin/test/%d", testID), nil, nil)
}

// ListQuestions returns the questions of a test.
func (c *Client) ListQuestions(ctx context.Context, testID int64) ([]Question, error) {
	var out []Question
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/admin/test/%d/questions", testID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddQuestion appends a single question to a test.
func (c *Client) AddQuestion(ctx context.Context, testID int64, in QuestionCreate) (*Question, error) {
	var out Question
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/admin/test/%d/add-question", testID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteQuestion removes a question.
func (c *Client) DeleteQuestion(ctx context.Context, questionID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/admin/question/%d", questionID), nil, nil)
}

// ListUsers returns all platform accounts.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TestResults returns the per-user results of a test.
func (c *Client) TestResults(ctx context.Context, testID int64) ([]SessionResult, error) {
	var out []SessionResult
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/admin/test/%d/results", testID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionReport returns the graded report for one session.
func (c *Client) SessionReport(ctx context.Context, sessionID int64) (*Report, error) {
	var out Report
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/admin/report/%d", sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartEvaluation kicks off the AI grading loop for a session.
func (c *Client) StartEvaluation(ctx context.Context, sessionID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/admin/evaluate/%d", sessionID), nil, nil)
}
