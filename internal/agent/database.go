package agent

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/guest"
	"github.com/edvin/dbaas/internal/model"
	"github.com/edvin/dbaas/internal/platform"
)

// validNameRe matches only alphanumeric characters and underscores.
// This prevents SQL injection in database/user names.
var validNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// systemSchemas never show up in tenant-facing listings.
var systemSchemas = map[string]bool{
	"mysql":              true,
	"information_schema": true,
	"performance_schema": true,
	"sys":                true,
}

// systemUsers are accounts the platform owns; tenants cannot see or touch
// them through the agent.
var systemUsers = map[string]bool{
	"root":             true,
	"os_admin":         true,
	"repl":             true,
	"mysql.sys":        true,
	"mysql.session":    true,
	"mysql.infoschema": true,
}

// DatabaseAdmin handles MySQL database and user operations via the mysql CLI.
type DatabaseAdmin struct {
	log zerolog.Logger
	dsn string
}

func NewDatabaseAdmin(log zerolog.Logger, dsn string) *DatabaseAdmin {
	return &DatabaseAdmin{
		log: log.With().Str("component", "database-admin").Logger(),
		dsn: dsn,
	}
}

// mysqlArgs parses the DSN and returns the base mysql CLI arguments for
// authentication and host connection.
func (m *DatabaseAdmin) mysqlArgs() ([]string, error) {
	dsn := m.dsn
	var args []string

	if strings.Contains(dsn, "@tcp(") {
		// Go MySQL driver format: user:pass@tcp(host:port)/dbname
		parts := strings.SplitN(dsn, "@tcp(", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid mysql DSN format")
		}

		userPass := parts[0]
		hostRest := parts[1]

		if idx := strings.Index(userPass, ":"); idx >= 0 {
			user := userPass[:idx]
			pass := userPass[idx+1:]
			args = append(args, "-u", user)
			if pass != "" {
				args = append(args, fmt.Sprintf("-p%s", pass))
			}
		} else {
			args = append(args, "-u", userPass)
		}

		if idx := strings.Index(hostRest, ")"); idx >= 0 {
			hostPort := hostRest[:idx]
			host, port, err := net.SplitHostPort(hostPort)
			if err != nil {
				args = append(args, "-h", hostPort)
			} else {
				args = append(args, "-h", host)
				if port != "" {
					args = append(args, "-P", port)
				}
			}
		}
	} else if strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql DSN: %w", err)
		}
		if u.User != nil {
			args = append(args, "-u", u.User.Username())
			if pass, ok := u.User.Password(); ok && pass != "" {
				args = append(args, fmt.Sprintf("-p%s", pass))
			}
		}
		if host := u.Hostname(); host != "" {
			args = append(args, "-h", host)
		}
		if port := u.Port(); port != "" {
			args = append(args, "-P", port)
		}
	}

	return args, nil
}

// execMySQL runs a mysql CLI command with the given SQL statement.
func (m *DatabaseAdmin) execMySQL(ctx context.Context, sql string) error {
	baseArgs, err := m.mysqlArgs()
	if err != nil {
		return fault.New(fault.GuestError, "parse mysql DSN: %v", err)
	}

	args := append(baseArgs, "-e", sql)
	cmd := exec.CommandContext(ctx, "mysql", args...)
	m.log.Debug().Str("sql", sql).Msg("executing mysql command")

	if output, err := cmd.CombinedOutput(); err != nil {
		return fault.New(fault.GuestError, "mysql command failed: %s: %v", string(output), err)
	}
	return nil
}

// queryMySQL runs a query and returns the tab-separated rows without headers.
func (m *DatabaseAdmin) queryMySQL(ctx context.Context, sql string) ([]string, error) {
	baseArgs, err := m.mysqlArgs()
	if err != nil {
		return nil, fault.New(fault.GuestError, "parse mysql DSN: %v", err)
	}

	args := append(baseArgs, "-N", "-e", sql)
	cmd := exec.CommandContext(ctx, "mysql", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fault.New(fault.GuestError, "mysql query failed: %s: %v", string(output), err)
	}

	var rows []string
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rows = append(rows, line)
		}
	}
	return rows, nil
}

// Ping reports whether the local database answers.
func (m *DatabaseAdmin) Ping(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "mysqladmin", "ping", "--silent")
	return cmd.Run() == nil
}

// validateName checks that a name contains only safe characters.
func validateName(name string) error {
	if !validNameRe.MatchString(name) {
		return fault.New(fault.BadValue, "invalid name %q: only alphanumeric and underscore allowed", name)
	}
	return nil
}

func escapePassword(password string) string {
	return strings.ReplaceAll(password, "'", "\\'")
}

// CreateDatabases creates the given schemas. Idempotent.
func (m *DatabaseAdmin) CreateDatabases(ctx context.Context, databases []model.DatabaseSpec) error {
	for _, db := range databases {
		if err := validateName(db.Name); err != nil {
			return err
		}

		m.log.Info().Str("database", db.Name).Msg("creating database")

		sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", db.Name)
		if db.Charset != "" {
			if err := validateName(db.Charset); err != nil {
				return err
			}
			sql += " CHARACTER SET " + db.Charset
		}
		if db.Collation != "" {
			if err := validateName(db.Collation); err != nil {
				return err
			}
			sql += " COLLATE " + db.Collation
		}
		if err := m.execMySQL(ctx, sql); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDatabase drops a schema. Idempotent.
func (m *DatabaseAdmin) DeleteDatabase(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	m.log.Info().Str("database", name).Msg("deleting database")
	return m.execMySQL(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name))
}

// ListDatabases returns one page of tenant-visible schemas in name order.
func (m *DatabaseAdmin) ListDatabases(ctx context.Context, limit int, marker string) (*guest.ListDatabasesResult, error) {
	rows, err := m.queryMySQL(ctx,
		"SELECT schema_name FROM information_schema.schemata ORDER BY schema_name")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, name := range rows {
		if systemSchemas[name] {
			continue
		}
		if marker != "" && name <= marker {
			continue
		}
		names = append(names, name)
	}

	result := &guest.ListDatabasesResult{}
	for i, name := range names {
		if limit > 0 && i >= limit {
			result.NextMarker = names[limit-1]
			break
		}
		result.Databases = append(result.Databases, model.DatabaseSpec{Name: name})
	}
	return result, nil
}

// CreateUsers creates the given users and grants them their databases.
// An existing user with the same name is replaced, which makes retries safe.
func (m *DatabaseAdmin) CreateUsers(ctx context.Context, users []model.UserSpec) error {
	for _, user := range users {
		if err := validateName(user.Name); err != nil {
			return err
		}
		if systemUsers[user.Name] {
			return fault.New(fault.BadValue, "user name %q is reserved", user.Name)
		}

		m.log.Info().Str("username", user.Name).Msg("creating database user")

		dropSQL := fmt.Sprintf("DROP USER IF EXISTS '%s'@'%%'", user.Name)
		if err := m.execMySQL(ctx, dropSQL); err != nil {
			m.log.Warn().Err(err).Str("username", user.Name).Msg("drop existing user failed, continuing")
		}

		// mysql_native_password for broad client compatibility
		// (caching_sha2_password requires SSL for first remote connection).
		createSQL := fmt.Sprintf("CREATE USER '%s'@'%%' IDENTIFIED WITH mysql_native_password BY '%s'",
			user.Name, escapePassword(user.Password))
		if err := m.execMySQL(ctx, createSQL); err != nil {
			return err
		}

		for _, db := range user.Databases {
			if err := m.grant(ctx, user.Name, db); err != nil {
				return err
			}
		}
	}
	return m.execMySQL(ctx, "FLUSH PRIVILEGES")
}

// DeleteUser drops a user. Idempotent.
func (m *DatabaseAdmin) DeleteUser(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if systemUsers[name] {
		return fault.New(fault.BadValue, "user name %q is reserved", name)
	}
	m.log.Info().Str("username", name).Msg("deleting database user")
	return m.execMySQL(ctx, fmt.Sprintf("DROP USER IF EXISTS '%s'@'%%'", name))
}

// ListUsers returns one page of tenant-visible users in name order.
func (m *DatabaseAdmin) ListUsers(ctx context.Context, limit int, marker string) (*guest.ListUsersResult, error) {
	rows, err := m.queryMySQL(ctx,
		"SELECT DISTINCT User FROM mysql.user WHERE Host = '%' ORDER BY User")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, name := range rows {
		if systemUsers[name] {
			continue
		}
		if marker != "" && name <= marker {
			continue
		}
		names = append(names, name)
	}

	result := &guest.ListUsersResult{}
	for i, name := range names {
		if limit > 0 && i >= limit {
			result.NextMarker = names[limit-1]
			break
		}
		access, err := m.ListAccess(ctx, name)
		if err != nil {
			return nil, err
		}
		var dbs []string
		for _, db := range access.Databases {
			dbs = append(dbs, db.Name)
		}
		result.Users = append(result.Users, model.UserSpec{Name: name, Databases: dbs})
	}
	return result, nil
}

// ChangePasswords rotates the given users' passwords.
func (m *DatabaseAdmin) ChangePasswords(ctx context.Context, users []model.UserSpec) error {
	for _, user := range users {
		if err := validateName(user.Name); err != nil {
			return err
		}
		if systemUsers[user.Name] {
			return fault.New(fault.BadValue, "user name %q is reserved", user.Name)
		}

		m.log.Info().Str("username", user.Name).Msg("changing user password")

		sql := fmt.Sprintf("ALTER USER '%s'@'%%' IDENTIFIED BY '%s'",
			user.Name, escapePassword(user.Password))
		if err := m.execMySQL(ctx, sql); err != nil {
			return err
		}
	}
	return m.execMySQL(ctx, "FLUSH PRIVILEGES")
}

func (m *DatabaseAdmin) grant(ctx context.Context, username, database string) error {
	if err := validateName(database); err != nil {
		return err
	}
	sql := fmt.Sprintf("GRANT ALL PRIVILEGES ON `%s`.* TO '%s'@'%%'", database, username)
	return m.execMySQL(ctx, sql)
}

// GrantAccess grants the user full privileges on each database.
func (m *DatabaseAdmin) GrantAccess(ctx context.Context, username string, databases []string) error {
	if err := validateName(username); err != nil {
		return err
	}
	for _, db := range databases {
		if err := m.grant(ctx, username, db); err != nil {
			return err
		}
	}
	return m.execMySQL(ctx, "FLUSH PRIVILEGES")
}

// RevokeAccess removes the user's privileges on each database.
func (m *DatabaseAdmin) RevokeAccess(ctx context.Context, username string, databases []string) error {
	if err := validateName(username); err != nil {
		return err
	}
	for _, db := range databases {
		if err := validateName(db); err != nil {
			return err
		}
		sql := fmt.Sprintf("REVOKE ALL PRIVILEGES ON `%s`.* FROM '%s'@'%%'", db, username)
		if err := m.execMySQL(ctx, sql); err != nil {
			return err
		}
	}
	return m.execMySQL(ctx, "FLUSH PRIVILEGES")
}

// ListAccess returns the databases the user holds grants on.
func (m *DatabaseAdmin) ListAccess(ctx context.Context, username string) (*guest.ListDatabasesResult, error) {
	if err := validateName(username); err != nil {
		return nil, err
	}
	rows, err := m.queryMySQL(ctx,
		fmt.Sprintf("SELECT Db FROM mysql.db WHERE User = '%s' ORDER BY Db", username))
	if err != nil {
		return nil, err
	}

	result := &guest.ListDatabasesResult{}
	seen := map[string]bool{}
	for _, db := range rows {
		db = strings.ReplaceAll(db, "\\_", "_")
		if seen[db] || systemSchemas[db] {
			continue
		}
		seen[db] = true
		result.Databases = append(result.Databases, model.DatabaseSpec{Name: db})
	}
	sort.Slice(result.Databases, func(i, j int) bool {
		return result.Databases[i].Name < result.Databases[j].Name
	})
	return result, nil
}

// EnableRoot creates (or resets) the root account with a fresh password and
// returns the credentials. The agent generates the password so it never
// travels into the guest over the wire.
func (m *DatabaseAdmin) EnableRoot(ctx context.Context) (*guest.EnableRootResult, error) {
	password := platform.NewPassword()

	m.log.Info().Msg("enabling root access")

	sqls := []string{
		"CREATE USER IF NOT EXISTS 'root'@'%'",
		fmt.Sprintf("ALTER USER 'root'@'%%' IDENTIFIED BY '%s'", escapePassword(password)),
		"GRANT ALL PRIVILEGES ON *.* TO 'root'@'%' WITH GRANT OPTION",
		"FLUSH PRIVILEGES",
	}
	for _, sql := range sqls {
		if err := m.execMySQL(ctx, sql); err != nil {
			return nil, err
		}
	}

	return &guest.EnableRootResult{
		User: model.UserSpec{Name: "root", Password: password},
	}, nil
}

// DisableRoot drops the remote root account. Local root survives for the
// platform's own use.
func (m *DatabaseAdmin) DisableRoot(ctx context.Context) error {
	m.log.Info().Msg("disabling root access")
	return m.execMySQL(ctx, "DROP USER IF EXISTS 'root'@'%'")
}

// IsRootEnabled reports whether the remote root account exists right now.
func (m *DatabaseAdmin) IsRootEnabled(ctx context.Context) (bool, error) {
	rows, err := m.queryMySQL(ctx,
		"SELECT count(*) FROM mysql.user WHERE User = 'root' AND Host = '%'")
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	n, err := strconv.Atoi(rows[0])
	if err != nil {
		return false, fault.New(fault.GuestError, "unexpected count output %q", rows[0])
	}
	return n > 0, nil
}

// Stop stops the database process. With doNotStartOnReboot the unit is also
// disabled, pinning the process down across the reboot a resize implies.
func (m *DatabaseAdmin) Stop(ctx context.Context, doNotStartOnReboot bool) error {
	m.log.Info().Bool("pin_down", doNotStartOnReboot).Msg("stopping database")
	if err := m.systemctl(ctx, "stop", "mysql"); err != nil {
		return err
	}
	if doNotStartOnReboot {
		return m.systemctl(ctx, "disable", "mysql")
	}
	return nil
}

// Start re-enables and starts the database process.
func (m *DatabaseAdmin) Start(ctx context.Context) error {
	m.log.Info().Msg("starting database")
	if err := m.systemctl(ctx, "enable", "mysql"); err != nil {
		m.log.Warn().Err(err).Msg("enable mysql unit failed, continuing")
	}
	return m.systemctl(ctx, "start", "mysql")
}

// Restart bounces the database process.
func (m *DatabaseAdmin) Restart(ctx context.Context) error {
	m.log.Info().Msg("restarting database")
	return m.systemctl(ctx, "restart", "mysql")
}

// StartWithConfig writes the given server config and starts the database.
func (m *DatabaseAdmin) StartWithConfig(ctx context.Context, configContents string) error {
	if configContents != "" {
		if err := m.WriteConfig(configContents); err != nil {
			return err
		}
	}
	return m.Start(ctx)
}

const mysqlConfigPath = "/etc/mysql/conf.d/dbaas.cnf"

// WriteConfig replaces the platform-managed server config overlay.
func (m *DatabaseAdmin) WriteConfig(contents string) error {
	m.log.Info().Str("path", mysqlConfigPath).Msg("writing database config")
	if err := os.MkdirAll("/etc/mysql/conf.d", 0755); err != nil {
		return fault.New(fault.GuestError, "create mysql conf dir: %v", err)
	}
	if err := os.WriteFile(mysqlConfigPath, []byte(contents), 0644); err != nil {
		return fault.New(fault.GuestError, "write mysql config: %v", err)
	}
	return nil
}

func (m *DatabaseAdmin) systemctl(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "systemctl", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fault.New(fault.GuestError, "systemctl %v: %s: %v", args, string(output), err)
	}
	return nil
}
