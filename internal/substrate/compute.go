// Package substrate holds the clients for the infrastructure services the
// control plane drives: the compute API, the block storage API, the DNS
// backend and the object store. Callers treat these as dumb transports;
// polling and state decisions stay in the workflows.
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

// Server is the compute service's view of one virtual machine.
type Server struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	FlavorID  string            `json:"flavor_id"`
	Addresses map[string]string `json:"addresses,omitempty"`
}

// BlockDevice asks the compute service to attach a volume at boot.
type BlockDevice struct {
	VolumeID            string `json:"volume_id,omitempty"`
	SizeGB              int    `json:"size_gb,omitempty"`
	DeviceName          string `json:"device_name"`
	DeleteOnTermination bool   `json:"delete_on_termination"`
}

// CreateServerParams describes one boot request. Files are injected into
// the guest image before first boot.
type CreateServerParams struct {
	Name             string            `json:"name"`
	ImageID          string            `json:"image_id"`
	FlavorID         string            `json:"flavor_id"`
	Files            map[string]string `json:"files,omitempty"`
	BlockDevices     []BlockDevice     `json:"block_device_mapping,omitempty"`
	SecurityGroups   []string          `json:"security_groups,omitempty"`
	AvailabilityZone string            `json:"availability_zone,omitempty"`
}

// ComputeClient talks to the compute service's server API.
type ComputeClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewComputeClient(baseURL, token string) *ComputeClient {
	return &ComputeClient{httpClient: &http.Client{}, baseURL: baseURL, token: token}
}

func (c *ComputeClient) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
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
	// A rejected token is a deployment problem, not a per-server condition;
	// surface it as its own kind so callers never retry it as transient.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, fault.New(fault.SubstrateAuth,
			"compute rejected credentials for %s %s (status %d)", method, path, resp.StatusCode)
	}
	return resp, nil
}

func (c *ComputeClient) CreateServer(ctx context.Context, params CreateServerParams) (*Server, error) {
	resp, err := c.do(ctx, http.MethodPost, "/servers", map[string]any{"server": params})
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("create server %s: status %d: %s", params.Name, resp.StatusCode, string(body))
	}

	var result struct {
		Server Server `json:"server"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode server: %w", err)
	}
	return &result.Server, nil
}

func (c *ComputeClient) GetServer(ctx context.Context, serverID string) (*Server, error) {
	resp, err := c.do(ctx, http.MethodGet, "/servers/"+serverID, nil)
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fault.New(fault.ComputeInstanceNotFound, "server %s not found", serverID)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get server %s: status %d: %s", serverID, resp.StatusCode, string(body))
	}

	var result struct {
		Server Server `json:"server"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode server: %w", err)
	}
	return &result.Server, nil
}

func (c *ComputeClient) DeleteServer(ctx context.Context, serverID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/servers/"+serverID, nil)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fault.New(fault.ComputeInstanceNotFound, "server %s not found", serverID)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete server %s: status %d: %s", serverID, resp.StatusCode, string(body))
	}
	return nil
}

// action posts one of the server action verbs (resize, reboot, ...).
func (c *ComputeClient) action(ctx context.Context, serverID string, payload any) error {
	resp, err := c.do(ctx, http.MethodPost, "/servers/"+serverID+"/action", payload)
	if err != nil {
		return fmt.Errorf("server action: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fault.New(fault.ComputeInstanceNotFound, "server %s not found", serverID)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server %s action: status %d: %s", serverID, resp.StatusCode, string(body))
	}
	return nil
}

// ResizeServer moves the server to a new flavor. The server lands in
// VERIFY_RESIZE and waits for ConfirmResize or RevertResize.
func (c *ComputeClient) ResizeServer(ctx context.Context, serverID, flavorID string) error {
	return c.action(ctx, serverID, map[string]any{"resize": map[string]string{"flavor_id": flavorID}})
}

func (c *ComputeClient) ConfirmResize(ctx context.Context, serverID string) error {
	return c.action(ctx, serverID, map[string]any{"confirm_resize": nil})
}

func (c *ComputeClient) RevertResize(ctx context.Context, serverID string) error {
	return c.action(ctx, serverID, map[string]any{"revert_resize": nil})
}

func (c *ComputeClient) RebootServer(ctx context.Context, serverID string) error {
	return c.action(ctx, serverID, map[string]any{"reboot": map[string]string{"type": "SOFT"}})
}

// RescanServerVolume tells the server to re-read the volume's size after a
// block storage extend.
func (c *ComputeClient) RescanServerVolume(ctx context.Context, serverID, volumeID string) error {
	return c.action(ctx, serverID, map[string]any{"rescan_volume": map[string]string{"volume_id": volumeID}})
}

// ListServers returns every server visible to the service account. Used by
// the status reconciler to spot vanished machines.
func (c *ComputeClient) ListServers(ctx context.Context) ([]Server, error) {
	resp, err := c.do(ctx, http.MethodGet, "/servers", nil)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list servers: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Servers []Server `json:"servers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode servers: %w", err)
	}
	return result.Servers, nil
}
