package activity

import (
	"context"

	"github.com/edvin/dbaas/internal/substrate"
)

// DNS contains activities that publish instance hostnames.
type DNS struct {
	manager *substrate.DNSManager
}

// NewDNS creates a new DNS activity struct.
func NewDNS(manager *substrate.DNSManager) *DNS {
	return &DNS{manager: manager}
}

// CreateDNSEntryParams holds the parameters for CreateDNSEntry.
type CreateDNSEntryParams struct {
	InstanceID string
	Address    string
}

// CreateDNSEntry publishes the instance's A record and returns the
// hostname it chose. With DNS disabled it returns an empty hostname.
func (a *DNS) CreateDNSEntry(ctx context.Context, params CreateDNSEntryParams) (string, error) {
	if !a.manager.Enabled() {
		return "", nil
	}
	hostname := a.manager.Hostname(params.InstanceID)
	if err := a.manager.CreateEntry(ctx, hostname, params.Address); err != nil {
		return "", err
	}
	return hostname, nil
}

// DeleteDNSEntry removes the instance's A record.
func (a *DNS) DeleteDNSEntry(ctx context.Context, instanceID string) error {
	if !a.manager.Enabled() {
		return nil
	}
	return a.manager.DeleteEntry(ctx, a.manager.Hostname(instanceID))
}

// GetDNSEntry resolves the instance's record; delete flows poll this until
// it reports DNSRecordNotFound.
func (a *DNS) GetDNSEntry(ctx context.Context, instanceID string) (string, error) {
	return a.manager.GetEntry(ctx, a.manager.Hostname(instanceID))
}
