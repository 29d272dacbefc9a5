package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dbaas/internal/model"
)

// APIClient communicates with core-api internal endpoints. Everything the
// agent writes back to the control plane goes over this authenticated HTTP
// path, never through the task queue.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewAPIClient(baseURL, token string, log zerolog.Logger) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("component", "api-client").Logger(),
	}
}

// Heartbeat reports agent liveness for the instance.
func (c *APIClient) Heartbeat(ctx context.Context, instanceID string) error {
	return c.postJSON(ctx, fmt.Sprintf("/internal/v1/instances/%s/heartbeat", instanceID), nil)
}

// ReportStatus reports the database process status for the instance.
func (c *APIClient) ReportStatus(ctx context.Context, instanceID string, status model.ServiceStatus) error {
	payload := struct {
		Status string `json:"status"`
	}{Status: string(status)}
	return c.postJSON(ctx, fmt.Sprintf("/internal/v1/instances/%s/status", instanceID), payload)
}

// BackupCompletion is the agent's out-of-band report for one finished (or
// failed) backup job.
type BackupCompletion struct {
	State           string    `json:"state"`
	Location        string    `json:"location,omitempty"`
	Checksum        string    `json:"checksum,omitempty"`
	SizeBytes       int64     `json:"size_bytes,omitempty"`
	BackupTimestamp time.Time `json:"backup_timestamp,omitempty"`
}

// CompleteBackup reports the outcome of a backup job.
func (c *APIClient) CompleteBackup(ctx context.Context, backupID string, completion *BackupCompletion) error {
	return c.postJSON(ctx, fmt.Sprintf("/internal/v1/backups/%s/complete", backupID), completion)
}

func (c *APIClient) postJSON(ctx context.Context, path string, payload any) error {
	url := c.baseURL + path
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
