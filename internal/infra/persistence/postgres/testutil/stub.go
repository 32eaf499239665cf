// Package testutil provides a stub database/sql driver for postgres adapter tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"
)

var (
	insertRe = regexp.MustCompile(`(?is)^INSERT INTO\s+(\w+)\s*\(([^)]*)\)`)
	selectRe = regexp.MustCompile(`(?is)^SELECT\s+(.+?)\s+FROM\s+(\w+)(?:\s+WHERE\s+(\w+)\s*=\s*\$1)?\s*$`)
	deleteRe = regexp.MustCompile(`(?is)^DELETE FROM\s+(\w+)\s+WHERE\s+(\w+)\s*=\s*\$1\s*$`)

	stubSeq atomic.Int64
)

// StubConn records executed statements and keeps rows per table. Rows are
// keyed by their first inserted column when the statement upserts.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailTables map[string]bool
}

// NewStubDB registers a fresh driver and returns a sql.DB over its single
// connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("budgetcore-stubpg-%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn; every statement goes through the
// ExecerContext and QueryerContext fast paths instead.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepared statements unsupported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return nil, errors.New("stub: transactions unsupported")
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("stub: ping failed")
	}
	return nil
}

func (c *StubConn) tableFails(table string) bool {
	return c.FailTables[strings.ToLower(table)]
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	query = strings.TrimSpace(query)
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	if m := insertRe.FindStringSubmatch(query); m != nil {
		table := strings.ToLower(m[1])
		if c.tableFails(table) {
			return nil, fmt.Errorf("stub: insert into %s failed", table)
		}
		cols := strings.Split(m[2], ",")
		if len(cols) != len(args) {
			return nil, fmt.Errorf("stub: %d columns but %d args", len(cols), len(args))
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[strings.TrimSpace(col)] = args[i].Value
		}
		if strings.Contains(strings.ToUpper(query), "ON CONFLICT") {
			key := strings.TrimSpace(cols[0])
			c.remove(table, key, row[key])
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	}
	if m := deleteRe.FindStringSubmatch(query); m != nil {
		if len(args) == 0 {
			return nil, errors.New("stub: delete without argument")
		}
		return driver.RowsAffected(c.remove(strings.ToLower(m[1]), m[2], args[0].Value)), nil
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) remove(table, col string, value any) int64 {
	kept := c.Tables[table][:0]
	var removed int64
	for _, row := range c.Tables[table] {
		if row[col] == value {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return removed
}

// QueryContext implements driver.QueryerContext for single-table selects with
// an optional equality predicate on $1.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	m := selectRe.FindStringSubmatch(strings.TrimSpace(query))
	if m == nil {
		return nil, fmt.Errorf("stub: cannot parse select: %s", query)
	}
	table := strings.ToLower(m[2])
	if c.tableFails(table) {
		return nil, fmt.Errorf("stub: select from %s failed", table)
	}
	cols := strings.Split(m[1], ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	if m[3] != "" && len(args) == 0 {
		return nil, errors.New("stub: select without argument")
	}
	rows := &stubRows{cols: cols}
	for _, row := range c.Tables[table] {
		if m[3] != "" && row[m[3]] != args[0].Value {
			continue
		}
		values := make([]driver.Value, len(cols))
		for i, col := range cols {
			values[i] = row[col]
		}
		rows.data = append(rows.data, values)
	}
	return rows, nil
}

type stubRows struct {
	cols []string
	data [][]driver.Value
	next int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.next])
	r.next++
	return nil
}
