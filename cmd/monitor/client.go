package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"collabbot/internal/collab"
	"collabbot/internal/domain"
)

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) waitHealth(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		var health map[string]any
		if err := c.getJSON(ctx, "/healthz", &health); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s/healthz", c.baseURL)
		case <-time.After(400 * time.Millisecond):
		}
	}
}

func (c *client) listProjects(ctx context.Context) ([]domain.Project, error) {
	var out []domain.Project
	if err := c.getJSON(ctx, "/projects", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) project(ctx context.Context, id string) (domain.Project, error) {
	var out domain.Project
	err := c.getJSON(ctx, "/projects/"+url.PathEscape(id), &out)
	return out, err
}

func (c *client) projectStats(ctx context.Context, id string) (domain.ProjectStats, error) {
	var out domain.ProjectStats
	err := c.getJSON(ctx, "/projects/"+url.PathEscape(id)+"/stats", &out)
	return out, err
}

func (c *client) contributions(ctx context.Context, id string) ([]domain.AgentContribution, error) {
	var out []domain.AgentContribution
	if err := c.getJSON(ctx, "/projects/"+url.PathEscape(id)+"/contributions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) collaborationStats(ctx context.Context, id string) (domain.CollaborationStats, error) {
	var out domain.CollaborationStats
	err := c.getJSON(ctx, "/projects/"+url.PathEscape(id)+"/collaboration/stats", &out)
	return out, err
}

func (c *client) rounds(ctx context.Context, id string) ([]collab.RoundView, error) {
	var out []collab.RoundView
	if err := c.getJSON(ctx, "/projects/"+url.PathEscape(id)+"/collaboration", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) collaborate(ctx context.Context, id, sender, request string) (collab.Round, error) {
	var out collab.Round
	in := map[string]string{"sender": sender, "request": request}
	err := c.postJSON(ctx, "/projects/"+url.PathEscape(id)+"/collaborate", in, &out)
	return out, err
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) postJSON(ctx context.Context, path string, in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
