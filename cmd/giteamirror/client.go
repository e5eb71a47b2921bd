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

	httphandler "github.com/ericfisherdev/giteamirror/internal/adapter/driving/http"
)

const pollInterval = 2 * time.Second

// apiClient talks to a running giteamirror server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *apiClient) startJob(ctx context.Context, configID string, repoIDs []string) (*httphandler.JobResponse, error) {
	var job httphandler.JobResponse
	body := httphandler.StartJobRequest{ConfigID: configID, RepositoryIDs: repoIDs}
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) sync(ctx context.Context, configID string) (*httphandler.SyncResponse, error) {
	var result httphandler.SyncResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/configs/"+configID+"/sync", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) getJob(ctx context.Context, jobID string) (*httphandler.JobResponse, error) {
	var job httphandler.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+jobID, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// waitJob polls a job until it reaches a terminal status.
func (c *apiClient) waitJob(ctx context.Context, jobID string) (*httphandler.JobResponse, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.getJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status == "completed" || job.Status == "failed" {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
