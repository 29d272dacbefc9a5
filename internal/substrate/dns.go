package substrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edvin/dbaas/internal/fault"
)

// DNSManager writes instance A records straight into the authoritative DNS
// database. When support is disabled every method is a no-op so the
// lifecycle workflows stay branch-free.
type DNSManager struct {
	db     *pgxpool.Pool
	domain string
	ttl    int
}

// NewDNSManager returns a manager bound to the zone for domain. A nil pool
// disables DNS entirely.
func NewDNSManager(db *pgxpool.Pool, domain string, ttl int) *DNSManager {
	return &DNSManager{db: db, domain: domain, ttl: ttl}
}

func (m *DNSManager) Enabled() bool {
	return m != nil && m.db != nil
}

func (m *DNSManager) zoneID(ctx context.Context) (int, error) {
	var id int
	err := m.db.QueryRow(ctx, `SELECT id FROM domains WHERE name = $1`, m.domain).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fault.New(fault.NotFound, "dns zone %s not found", m.domain)
		}
		return 0, fmt.Errorf("get dns zone id: %w", err)
	}
	return id, nil
}

// CreateEntry writes the A record for hostname pointing at address.
func (m *DNSManager) CreateEntry(ctx context.Context, hostname, address string) error {
	if !m.Enabled() {
		return nil
	}
	id, err := m.zoneID(ctx)
	if err != nil {
		return err
	}
	_, err = m.db.Exec(ctx,
		`INSERT INTO records (domain_id, name, type, content, ttl) VALUES ($1, $2, 'A', $3, $4)`,
		id, hostname, address, m.ttl)
	if err != nil {
		return fmt.Errorf("write dns record %s: %w", hostname, err)
	}
	return nil
}

// DeleteEntry removes the A record for hostname. A missing record maps to
// DNSRecordNotFound so delete flows can treat it as already gone.
func (m *DNSManager) DeleteEntry(ctx context.Context, hostname string) error {
	if !m.Enabled() {
		return nil
	}
	id, err := m.zoneID(ctx)
	if err != nil {
		return err
	}
	tag, err := m.db.Exec(ctx,
		`DELETE FROM records WHERE domain_id = $1 AND name = $2 AND type = 'A'`,
		id, hostname)
	if err != nil {
		return fmt.Errorf("delete dns record %s: %w", hostname, err)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.DNSRecordNotFound, "dns record %s not found", hostname)
	}
	return nil
}

// GetEntry returns the address the hostname points at.
func (m *DNSManager) GetEntry(ctx context.Context, hostname string) (string, error) {
	if !m.Enabled() {
		return "", fault.New(fault.DNSRecordNotFound, "dns support is disabled")
	}
	id, err := m.zoneID(ctx)
	if err != nil {
		return "", err
	}
	var content string
	err = m.db.QueryRow(ctx,
		`SELECT content FROM records WHERE domain_id = $1 AND name = $2 AND type = 'A'`,
		id, hostname).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fault.New(fault.DNSRecordNotFound, "dns record %s not found", hostname)
		}
		return "", fmt.Errorf("get dns record %s: %w", hostname, err)
	}
	return content, nil
}

// Hostname derives the instance's fully qualified name inside the zone.
func (m *DNSManager) Hostname(instanceID string) string {
	return strings.ToLower(instanceID) + "." + m.domain
}
