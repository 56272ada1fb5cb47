// Copyright (c) 2018, Postgres Professional

package pg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx"
)

// Querier is the point-query surface consumed from a running engine.
type Querier interface {
	InRecovery(port int) (bool, error)
	CurrentWALPosition(port int) (string, error)
	ReplayWALPosition(port int) (string, error)
	CreateReplicationRole(port int, role string) error
}

// LiveQuerier talks to real instances over loopback as the given user.
type LiveQuerier struct {
	User string
}

var _ Querier = (*LiveQuerier)(nil)

func (q *LiveQuerier) connect(port int) (*pgx.Conn, error) {
	cp := map[string]string{
		"host":   "127.0.0.1",
		"port":   strconv.Itoa(port),
		"dbname": "postgres",
	}
	if q.User != "" {
		cp["user"] = q.User
	}
	connconfig, err := pgx.ParseConnectionString(ConnString(cp))
	if err != nil {
		return nil, err
	}
	conn, err := pgx.Connect(connconfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to port %d: %v", port, err)
	}
	return conn, nil
}

// InRecovery answers whether the instance currently acts as a replication
// target. An error here usually means the instance is still starting up and
// not yet answering queries.
func (q *LiveQuerier) InRecovery(port int) (bool, error) {
	conn, err := q.connect(port)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var inRecovery bool
	if err := conn.QueryRow("select pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return false, err
	}
	return inRecovery, nil
}

// CurrentWALPosition reads the write position on a node producing WAL.
// The old function name is tried when the new one does not exist.
func (q *LiveQuerier) CurrentWALPosition(port int) (string, error) {
	return q.walPosition(port, "pg_current_wal_lsn", "pg_current_xlog_location")
}

// ReplayWALPosition reads the last replayed position on a recovering node.
func (q *LiveQuerier) ReplayWALPosition(port int) (string, error) {
	return q.walPosition(port, "pg_last_wal_replay_lsn", "pg_last_xlog_replay_location")
}

func (q *LiveQuerier) walPosition(port int, fn string, oldFn string) (string, error) {
	conn, err := q.connect(port)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	var pos *string
	if err := conn.QueryRow(fmt.Sprintf("select %s()", fn)).Scan(&pos); err != nil {
		if err := conn.QueryRow(fmt.Sprintf("select %s()", oldFn)).Scan(&pos); err != nil {
			return "", err
		}
	}
	if pos == nil {
		return "", fmt.Errorf("no WAL position reported on port %d", port)
	}
	return *pos, nil
}

// CreateReplicationRole creates the dedicated replication role on a fresh
// primary. Synchronous commit is turned off for the session since no standby
// exists yet to acknowledge anything.
func (q *LiveQuerier) CreateReplicationRole(port int, role string) error {
	conn, err := q.connect(port)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Exec("set synchronous_commit to local"); err != nil {
		return fmt.Errorf("disabling synchronous_commit failed: %v", err)
	}
	if _, err := conn.Exec(fmt.Sprintf("create role %s with replication login", QuoteIdent(role))); err != nil {
		return fmt.Errorf("creating replication role %s failed: %v", role, err)
	}
	return nil
}

func QuoteIdent(ident string) string {
	return `"` + strings.Replace(ident, `"`, `""`, -1) + `"`
}

// ConnString returns a connection string, its entries are sorted so the
// returned string can be reproducible and comparable
func ConnString(p map[string]string) string {
	var kvs []string
	escaper := strings.NewReplacer(` `, `\ `, `'`, `\'`, `\`, `\\`)
	for k, v := range p {
		if v != "" {
			kvs = append(kvs, k+"="+escaper.Replace(v))
		}
	}
	sort.Sort(sort.StringSlice(kvs))
	return strings.Join(kvs, " ")
}
