package substrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/edvin/dbaas/internal/fault"
)

// Volume is the block storage service's view of one volume.
type Volume struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	SizeGB           int    `json:"size_gb"`
	AvailabilityZone string `json:"availability_zone,omitempty"`
}

// Volume states reported by the block storage service.
const (
	VolumeAvailable = "available"
	VolumeInUse     = "in-use"
	VolumeError     = "error"
)

// VolumeClient talks to the block storage API.
type VolumeClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewVolumeClient(baseURL, token string) *VolumeClient {
	return &VolumeClient{httpClient: &http.Client{}, baseURL: baseURL, token: token}
}

func (c *VolumeClient) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s %s request: %w", method, path, err)
	}
	req.Header.Set("X-Auth-Token", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, fault.New(fault.SubstrateAuth,
			"block storage rejected credentials for %s %s (status %d)", method, path, resp.StatusCode)
	}
	return resp, nil
}

// CreateVolume provisions a new volume. The caller polls GetVolume until the
// volume reaches "available".
func (c *VolumeClient) CreateVolume(ctx context.Context, sizeGB int, name, availabilityZone string) (*Volume, error) {
	resp, err := c.do(ctx, http.MethodPost, "/volumes", map[string]any{
		"volume": map[string]any{
			"size_gb":           sizeGB,
			"display_name":      name,
			"availability_zone": availabilityZone,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create volume: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fault.New(fault.VolumeCreationFailure, "create volume %s: status %d: %s", name, resp.StatusCode, string(body))
	}

	var result struct {
		Volume Volume `json:"volume"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode volume: %w", err)
	}
	return &result.Volume, nil
}

func (c *VolumeClient) GetVolume(ctx context.Context, volumeID string) (*Volume, error) {
	resp, err := c.do(ctx, http.MethodGet, "/volumes/"+volumeID, nil)
	if err != nil {
		return nil, fmt.Errorf("get volume: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fault.New(fault.NotFound, "volume %s not found", volumeID)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get volume %s: status %d: %s", volumeID, resp.StatusCode, string(body))
	}

	var result struct {
		Volume Volume `json:"volume"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode volume: %w", err)
	}
	return &result.Volume, nil
}

func (c *VolumeClient) DeleteVolume(ctx context.Context, volumeID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/volumes/"+volumeID, nil)
	if err != nil {
		return fmt.Errorf("delete volume: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fault.New(fault.NotFound, "volume %s not found", volumeID)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete volume %s: status %d: %s", volumeID, resp.StatusCode, string(body))
	}
	return nil
}

// ExtendVolume grows the volume in place. The guest filesystem is resized
// separately after the compute side rescans the device.
func (c *VolumeClient) ExtendVolume(ctx context.Context, volumeID string, newSizeGB int) error {
	resp, err := c.do(ctx, http.MethodPost, "/volumes/"+volumeID+"/action", map[string]any{
		"extend": map[string]any{"new_size_gb": newSizeGB},
	})
	if err != nil {
		return fmt.Errorf("extend volume: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fault.New(fault.NotFound, "volume %s not found", volumeID)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("extend volume %s: status %d: %s", volumeID, resp.StatusCode, string(body))
	}
	return nil
}
