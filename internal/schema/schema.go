// Package schema owns the declared table/column allow-list and the
// human-readable schema document handed to the Planner's prompt. It is
// the single trust anchor the Guard checks candidate SQL against.
package schema

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Aiuser8/thallos-llm-service/internal/errors"
)

// Column is one declared column with its prompt-facing description.
type Column struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// TableSpec is one declared table: its fully-qualified name, description,
// primary key, and ordered column list.
type TableSpec struct {
	FQTN        string
	Description string
	PrimaryKey  []string
	Columns     []Column
}

type declaration struct {
	Tables []declaredTable `yaml:"tables"`
}

type declaredTable struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	PrimaryKey  []string `yaml:"primary_key"`
	Columns     []Column `yaml:"columns"`
}

// Rows is the narrow subset of pgx.Rows the registry needs to walk
// information_schema.columns. Kept minimal on purpose so tests can supply
// an in-memory fake instead of a live Postgres connection.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier is satisfied by *pgxpool.Pool via PoolQuerier, and by any test
// double that wants to fake information_schema.columns.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// PoolQuerier adapts a *pgxpool.Pool to Querier.
type PoolQuerier struct {
	Pool *pgxpool.Pool
}

func (q PoolQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return q.Pool.Query(ctx, sql, args...)
}

// MismatchError reports a declared table/column absent from the live
// database at startup.
type MismatchError struct {
	FQTN   string
	Column string
}

func (e *MismatchError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema mismatch: %s.%s not found in information_schema.columns", e.FQTN, e.Column)
	}

	return fmt.Sprintf("schema mismatch: %s has no columns in information_schema.columns", e.FQTN)
}

// Registry is the immutable, process-wide allow-list. Safe for concurrent
// read access from every in-flight request.
type Registry struct {
	order       []string
	tables      map[string]TableSpec
	colsByTable map[string]map[string]struct{}
	doc         string
}

// LoadDeclaration parses the YAML declaration file without touching the
// database. Exposed separately so the `schema` command can report the
// declared tables without going through Load.
func LoadDeclaration(path string) ([]TableSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema declaration: %w", err)
	}

	var decl declaration
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, fmt.Errorf("parse schema declaration: %w", err)
	}

	specs := make([]TableSpec, 0, len(decl.Tables))

	for _, t := range decl.Tables {
		spec := TableSpec{
			FQTN:        strings.ToLower(strings.TrimSpace(t.Name)),
			Description: t.Description,
			PrimaryKey:  lowerAll(t.PrimaryKey),
			Columns:     make([]Column, 0, len(t.Columns)),
		}
		for _, c := range t.Columns {
			spec.Columns = append(spec.Columns, Column{
				Name:        strings.ToLower(strings.TrimSpace(c.Name)),
				Description: c.Description,
			})
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

// Load parses the declaration and verifies every declared table/column
// exists in the live database's information_schema.columns. It fails
// closed: any mismatch aborts startup rather than serving with a stale
// or wrong allow-list.
func Load(ctx context.Context, declPath string, q Querier) (*Registry, error) {
	specs, err := LoadDeclaration(declPath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTypeConfig, "loading declared schema")
	}

	reg := &Registry{
		tables:      make(map[string]TableSpec, len(specs)),
		colsByTable: make(map[string]map[string]struct{}, len(specs)),
	}

	for _, spec := range specs {
		schemaName, tableName := splitFQTN(spec.FQTN)

		liveCols, err := fetchLiveColumns(ctx, q, schemaName, tableName)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrTypeConfig, "querying information_schema.columns")
		}

		if len(liveCols) == 0 {
			return nil, &MismatchError{FQTN: spec.FQTN}
		}

		colSet := make(map[string]struct{}, len(spec.Columns))

		for _, c := range spec.Columns {
			if _, ok := liveCols[c.Name]; !ok {
				return nil, &MismatchError{FQTN: spec.FQTN, Column: c.Name}
			}

			colSet[c.Name] = struct{}{}
		}

		reg.order = append(reg.order, spec.FQTN)
		reg.tables[spec.FQTN] = spec
		reg.colsByTable[spec.FQTN] = colSet
	}

	reg.doc = renderDoc(reg.order, reg.tables)

	return reg, nil
}

func fetchLiveColumns(ctx context.Context, q Querier, schemaName, tableName string) (map[string]struct{}, error) {
	rows, err := q.Query(
		ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`,
		schemaName, tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]struct{})

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		cols[strings.ToLower(name)] = struct{}{}
	}

	return cols, rows.Err()
}

func splitFQTN(fqtn string) (schemaName, tableName string) {
	parts := strings.SplitN(fqtn, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}

	return "public", parts[0]
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}

	return out
}

// TablesAllowed returns the fully-qualified, lower-cased declared tables.
func (r *Registry) TablesAllowed() map[string]struct{} {
	out := make(map[string]struct{}, len(r.tables))
	for fqtn := range r.tables {
		out[fqtn] = struct{}{}
	}

	return out
}

// ColumnsAllowed returns the declared column set for fqtn, or nil if the
// table has no declared columns (in which case column checks for it are
// skipped by the Guard).
func (r *Registry) ColumnsAllowed(fqtn string) map[string]struct{} {
	return r.colsByTable[strings.ToLower(fqtn)]
}

// AllColumns returns the full colsByTable map the Guard needs to check
// qualified column references against every declared table at once.
func (r *Registry) AllColumns() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(r.colsByTable))
	for fqtn, cols := range r.colsByTable {
		out[fqtn] = cols
	}

	return out
}

// Table returns the declared spec for fqtn.
func (r *Registry) Table(fqtn string) (TableSpec, bool) {
	spec, ok := r.tables[strings.ToLower(fqtn)]
	return spec, ok
}

// Doc returns the stable textual schema document shown to the Planner.
func (r *Registry) Doc() string {
	return r.doc
}

func renderDoc(order []string, tables map[string]TableSpec) string {
	names := make([]string, len(order))
	copy(names, order)
	sort.Strings(names)

	var b strings.Builder

	for _, fqtn := range names {
		spec := tables[fqtn]

		fmt.Fprintf(&b, "%s — %s\n", spec.FQTN, spec.Description)
		b.WriteString("columns:\n")

		for _, c := range spec.Columns {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		}

		if len(spec.PrimaryKey) > 0 {
			fmt.Fprintf(&b, "primary_key: [%s]\n", strings.Join(spec.PrimaryKey, ", "))
		}

		b.WriteString("\n")
	}

	return b.String()
}
