package agent

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/platform"
)

const replUser = "repl"

// GetReplicationSnapshot prepares everything a new replica needs: a fresh
// dump in the object store, the binlog coordinates that dump corresponds to,
// and replication credentials valid against this master.
func (m *DatabaseAdmin) GetReplicationSnapshot(ctx context.Context, runner *BackupRunner, backupID, bucket string) (*guest.ReplicationSnapshotResult, error) {
	password := platform.NewPassword()

	m.log.Info().Str("backup_id", backupID).Msg("preparing replication snapshot")

	sqls := []string{
		fmt.Sprintf("CREATE USER IF NOT EXISTS '%s'@'%%' IDENTIFIED BY '%s'", replUser, escapePassword(password)),
		fmt.Sprintf("ALTER USER '%s'@'%%' IDENTIFIED BY '%s'", replUser, escapePassword(password)),
		fmt.Sprintf("GRANT REPLICATION SLAVE ON *.* TO '%s'@'%%'", replUser),
		"FLUSH PRIVILEGES",
	}
	for _, sql := range sqls {
		if err := m.execMySQL(ctx, sql); err != nil {
			return nil, err
		}
	}

	objectKey := fmt.Sprintf("replication/%s.sql.gz", backupID)
	result, err := runner.Run(ctx, backupID, bucket, objectKey)
	if err != nil {
		return nil, err
	}

	logFile, logPos, err := m.masterCoordinates(ctx)
	if err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fault.New(fault.GuestError, "resolve own hostname: %v", err)
	}

	return &guest.ReplicationSnapshotResult{
		BackupID:     backupID,
		Location:     result.Location,
		MasterHost:   hostname,
		MasterPort:   3306,
		LogFile:      logFile,
		LogPosition:  logPos,
		ReplUser:     replUser,
		ReplPassword: password,
	}, nil
}

// masterCoordinates reads the current binlog file and position.
func (m *DatabaseAdmin) masterCoordinates(ctx context.Context) (string, int64, error) {
	rows, err := m.queryMySQL(ctx, "SHOW MASTER STATUS")
	if err != nil {
		return "", 0, err
	}
	if len(rows) == 0 {
		return "", 0, fault.New(fault.GuestError, "binary logging is not enabled")
	}
	fields := strings.Fields(rows[0])
	if len(fields) < 2 {
		return "", 0, fault.New(fault.GuestError, "unexpected master status output %q", rows[0])
	}
	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", 0, fault.New(fault.GuestError, "parse binlog position %q: %v", fields[1], err)
	}
	return fields[0], pos, nil
}

// AttachReplica seeds this instance from the snapshot and points replication
// at the master's coordinates.
func (m *DatabaseAdmin) AttachReplica(ctx context.Context, runner *BackupRunner, snapshot guest.ReplicationSnapshotResult, bucket string) error {
	m.log.Info().Str("master", snapshot.MasterHost).Str("backup_id", snapshot.BackupID).
		Msg("attaching as replica")

	objectKey := fmt.Sprintf("replication/%s.sql.gz", snapshot.BackupID)
	if err := runner.Restore(ctx, bucket, objectKey); err != nil {
		return err
	}

	_ = m.execMySQL(ctx, "STOP REPLICA")
	if err := m.execMySQL(ctx, "RESET REPLICA ALL"); err != nil {
		return err
	}
	sql := fmt.Sprintf(
		`CHANGE REPLICATION SOURCE TO SOURCE_HOST='%s', SOURCE_PORT=%d, SOURCE_USER='%s', SOURCE_PASSWORD='%s', SOURCE_LOG_FILE='%s', SOURCE_LOG_POS=%d, SOURCE_CONNECT_RETRY=10, GET_SOURCE_PUBLIC_KEY=1`,
		snapshot.MasterHost, snapshot.MasterPort, snapshot.ReplUser,
		escapePassword(snapshot.ReplPassword), snapshot.LogFile, snapshot.LogPosition,
	)
	if err := m.execMySQL(ctx, sql); err != nil {
		return err
	}
	if err := m.execMySQL(ctx, "START REPLICA"); err != nil {
		return err
	}
	if err := m.execMySQL(ctx, "SET GLOBAL read_only = ON"); err != nil {
		return err
	}
	return m.execMySQL(ctx, "SET GLOBAL super_read_only = ON")
}

// DetachReplica promotes this instance to standalone: replication stops and
// the instance becomes writable.
func (m *DatabaseAdmin) DetachReplica(ctx context.Context) error {
	m.log.Info().Msg("detaching replica")

	_ = m.execMySQL(ctx, "STOP REPLICA")
	if err := m.execMySQL(ctx, "RESET REPLICA ALL"); err != nil {
		return err
	}
	if err := m.execMySQL(ctx, "SET GLOBAL super_read_only = OFF"); err != nil {
		return err
	}
	return m.execMySQL(ctx, "SET GLOBAL read_only = OFF")
}

// CleanupSource drops the replication credentials this primary minted once a
// replica has detached. On a failover detach the replica may never have
// stopped cleanly, so the drop stays best-effort either way.
func (m *DatabaseAdmin) CleanupSource(ctx context.Context, replicaID string, forFailover bool) error {
	m.log.Info().Str("replica_id", replicaID).Bool("for_failover", forFailover).
		Msg("cleaning up replication source")

	if err := m.execMySQL(ctx, fmt.Sprintf("DROP USER IF EXISTS '%s'@'%%'", replUser)); err != nil {
		return err
	}
	return m.execMySQL(ctx, "FLUSH PRIVILEGES")
}
