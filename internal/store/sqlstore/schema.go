package sqlstore

import (
	"strconv"
	"strings"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type dialect struct {
	blob     string
	bigint   string
	numbered bool
}

var dialects = map[string]dialect{
	DriverSQLite:   {blob: "BLOB", bigint: "INTEGER"},
	DriverPostgres: {blob: "BYTEA", bigint: "BIGINT", numbered: true},
}

// schema returns the table definitions. Every statement is idempotent.
func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS account (
			id        INTEGER PRIMARY KEY CHECK (id = 1),
			user_id   TEXT NOT NULL,
			device_id TEXT NOT NULL,
			pickle    ` + d.blob + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS device_sessions (
			sender_key TEXT NOT NULL,
			session_id TEXT NOT NULL,
			created_at ` + d.bigint + ` NOT NULL,
			last_used  ` + d.bigint + ` NOT NULL,
			pickle     ` + d.blob + ` NOT NULL,
			PRIMARY KEY (sender_key, session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS inbound_group_sessions (
			room_id           TEXT NOT NULL,
			sender_key        TEXT NOT NULL,
			session_id        TEXT NOT NULL,
			signing_key       TEXT NOT NULL,
			first_known_index ` + d.bigint + ` NOT NULL,
			pickle            ` + d.blob + ` NOT NULL,
			PRIMARY KEY (room_id, sender_key, session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS outbound_group_sessions (
			room_id       TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL,
			created_at    ` + d.bigint + ` NOT NULL,
			message_count ` + d.bigint + ` NOT NULL,
			shared_with   TEXT NOT NULL,
			pickle        ` + d.blob + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS devices (
			user_id   TEXT NOT NULL,
			device_id TEXT NOT NULL,
			keys      TEXT NOT NULL,
			PRIMARY KEY (user_id, device_id)
		)`,
	}
}

// rebind rewrites ? placeholders as $1, $2, ... for drivers that need numbered ones.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
