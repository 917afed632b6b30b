package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	gwerrors "github.com/Aiuser8/thallos-llm-service/internal/errors"
	"github.com/Aiuser8/thallos-llm-service/internal/logging"
)

// Row is a single result row keyed by column label.
type Row map[string]any

// ResultSet is the ordered sequence of rows produced by a single
// execution.
type ResultSet struct {
	Rows []Row
}

// Rows is the narrow subset of pgx.Rows the executor needs.
type Rows interface {
	Next() bool
	Values() ([]any, error)
	FieldDescriptions() []FieldDescription
	Err() error
	Close()
}

// FieldDescription carries just the column name pgx exposes per field.
type FieldDescription struct {
	Name string
}

// Conn is the narrow subset of a pooled connection the executor needs.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Release()
}

// Pool is the narrow subset of pgxpool.Pool the executor needs, letting
// tests inject a fake pool with no live Postgres connection.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// PoolAdapter adapts a *pgxpool.Pool to the executor's narrow Pool
// interface for production use.
type PoolAdapter struct {
	Pool *pgxpool.Pool
}

func (a PoolAdapter) Acquire(ctx context.Context) (Conn, error) {
	conn, err := a.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return connAdapter{conn}, nil
}

type connAdapter struct {
	conn *pgxpool.Conn
}

func (c connAdapter) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := c.conn.Exec(ctx, sql, args...)
	return err
}

func (c connAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	return rowsAdapter{rows}, nil
}

func (c connAdapter) Release() {
	c.conn.Release()
}

// rowsAdapter adapts pgx.Rows to the executor's narrow Rows interface.
type rowsAdapter struct {
	rows pgx.Rows
}

func (r rowsAdapter) Next() bool             { return r.rows.Next() }
func (r rowsAdapter) Values() ([]any, error) { return r.rows.Values() }
func (r rowsAdapter) Err() error             { return r.rows.Err() }
func (r rowsAdapter) Close()                 { r.rows.Close() }

func (r rowsAdapter) FieldDescriptions() []FieldDescription {
	fds := r.rows.FieldDescriptions()
	out := make([]FieldDescription, len(fds))

	for i, fd := range fds {
		out[i] = FieldDescription{Name: fd.Name}
	}

	return out
}

// Executor runs guarded statements under a per-statement timeout.
type Executor struct {
	pool             Pool
	statementTimeout time.Duration
	debugSQL         bool
}

// New builds an Executor around pool, applying statementTimeout to every
// checked-out connection before use. debugSQL logs every guarded
// statement at debug level before it runs, for the DEBUG_SQL environment
// variable.
func New(pool Pool, statementTimeout time.Duration, debugSQL bool) *Executor {
	return &Executor{pool: pool, statementTimeout: statementTimeout, debugSQL: debugSQL}
}

// Ping checks database liveness under the statement timeout, used by the
// Coordinator's per-request DB liveness probe.
func (e *Executor) Ping(ctx context.Context) error {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	queryCtx, cancel := context.WithTimeout(ctx, e.statementTimeout)
	defer cancel()

	rows, err := conn.Query(queryCtx, "SELECT 1")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
	}

	return rows.Err()
}

// Execute acquires a pooled connection, sets statement_timeout, runs sql,
// and releases the connection on every exit path including panic.
func (e *Executor) Execute(ctx context.Context, sql string) (result ResultSet, execErr error) {
	if e.debugSQL {
		logging.Debugf("executing sql: %s", sql)
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return ResultSet{}, gwerrors.ExecutionError(sql, fmt.Errorf("acquire connection: %w", err))
	}

	defer func() {
		r := recover()
		conn.Release()

		if r != nil {
			panic(r)
		}
	}()

	timeoutStmt := fmt.Sprintf("SET statement_timeout = %d", e.statementTimeout.Milliseconds())
	if err := conn.Exec(ctx, timeoutStmt); err != nil {
		return ResultSet{}, gwerrors.ExecutionError(sql, fmt.Errorf("set statement_timeout: %w", err))
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.statementTimeout)
	defer cancel()

	rows, err := conn.Query(queryCtx, sql)
	if err != nil {
		return ResultSet{}, gwerrors.ExecutionError(sql, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()

	var out []Row

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return ResultSet{}, gwerrors.ExecutionError(sql, err)
		}

		row := make(Row, len(fields))
		for i, f := range fields {
			if i < len(values) {
				row[f.Name] = values[i]
			}
		}

		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return ResultSet{}, gwerrors.ExecutionError(sql, err)
	}

	return ResultSet{Rows: out}, nil
}
