// Package submit talks to the fhegas server API.
package submit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fhelabs/fhegas/cli/internal/config"
	"github.com/fhelabs/fhegas/internal/model"
)

// Client handles report submission and result retrieval
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
}

// CostRequest is the body for the set-cost endpoint
type CostRequest struct {
	Name        string `json:"name"`
	BaseCost    int64  `json:"base_cost"`
	PerByteCost int64  `json:"per_byte_cost"`
}

// SubjectsResponse is the subject log returned by the server
type SubjectsResponse struct {
	Subjects []string `json:"subjects"`
	Count    int64    `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a new API client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubmitReport sends one usage report to the server for analysis and
// returns the stored analysis.
func (c *Client) SubmitReport(report model.UsageReport) (model.ContractAnalysis, error) {
	var analysis model.ContractAnalysis

	data, err := json.Marshal(report)
	if err != nil {
		return analysis, err
	}

	if err := c.do("POST", "/api/analyze", data, &analysis); err != nil {
		return model.ContractAnalysis{}, err
	}
	return analysis, nil
}

// GetAnalysis fetches the latest stored analysis for a subject. Subjects
// that were never analyzed come back as an empty analysis, not an error.
func (c *Client) GetAnalysis(subjectID string) (model.ContractAnalysis, error) {
	var analysis model.ContractAnalysis
	path := "/api/analysis?subject_id=" + url.QueryEscape(subjectID)
	if err := c.do("GET", path, nil, &analysis); err != nil {
		return model.ContractAnalysis{}, err
	}
	return analysis, nil
}

// ListSubjects fetches the full analyzed-subject log, duplicates included.
func (c *Client) ListSubjects() ([]string, error) {
	var resp SubjectsResponse
	if err := c.do("GET", "/api/subjects", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Subjects, nil
}

// SetCost pushes a cost override to the server's registry.
func (c *Client) SetCost(name string, baseCost, perByteCost int64) error {
	data, err := json.Marshal(CostRequest{
		Name:        name,
		BaseCost:    baseCost,
		PerByteCost: perByteCost,
	})
	if err != nil {
		return err
	}
	return c.do("POST", "/api/costs", data, nil)
}

func (c *Client) do(method, path string, body []byte, out interface{}) error {
	url := c.cfg.Server + path

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
