package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/urban-mobility-etl/internal/domain"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sqliteMaxVariables is SQLite's default bound-parameter limit per statement.
const sqliteMaxVariables = 32766

// Store persists trips and zones to a relational database, replacing each
// table wholesale on every write.
// It implements pipeline.TableWriter.
type Store struct {
	db        *sql.DB
	dialect   dialect
	batchSize int
	logger    *slog.Logger
}

// Open connects to the database and verifies the connection.
// driver is "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string, batchSize int, logger *slog.Logger) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", batchSize)
	}

	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", driver, err)
	}
	if driver == "sqlite" {
		// One writer; a single connection keeps the transaction and any
		// follow-up reads on the same handle.
		db.SetMaxOpenConns(1)
	}

	return &Store{db: db, dialect: d, batchSize: batchSize, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceTrips drops and recreates the trips table, then inserts every trip.
func (s *Store) ReplaceTrips(ctx context.Context, trips []domain.Trip) (int, error) {
	return replaceTable(ctx, s, tripsSchema, trips)
}

// ReplaceZones drops and recreates the zones table, then inserts every zone.
func (s *Store) ReplaceZones(ctx context.Context, zones []domain.Zone) (int, error) {
	return replaceTable(ctx, s, zonesSchema, zones)
}

// CountRows returns the number of rows in one of the managed tables.
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	if !knownTables[table] {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// replaceTable swaps a table's contents inside one transaction so a failed
// run leaves the previous table intact.
func replaceTable[T any](ctx context.Context, s *Store, schema tableSchema[T], rows []T) (int, error) {
	s.logger.Info("replacing table", "table", schema.name, "rows", len(rows))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("replace %s: begin: %w", schema.name, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(schema.name)); err != nil {
		return 0, fmt.Errorf("replace %s: drop: %w", schema.name, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(s.dialect, schema)); err != nil {
		return 0, fmt.Errorf("replace %s: create: %w", schema.name, err)
	}

	batch := s.rowsPerStatement(len(schema.columns))
	var full *sql.Stmt
	if len(rows) >= batch {
		full, err = tx.PrepareContext(ctx, insertSQL(s.dialect, schema, batch))
		if err != nil {
			return 0, fmt.Errorf("replace %s: prepare: %w", schema.name, err)
		}
		defer full.Close()
	}

	args := make([]any, 0, batch*len(schema.columns))
	for start := 0; start < len(rows); start += batch {
		end := min(start+batch, len(rows))
		args = args[:0]
		for i := start; i < end; i++ {
			row := &rows[i]
			for _, c := range schema.columns {
				args = append(args, s.dialect.bind(c.kind, c.value(row)))
			}
		}

		if end-start == batch {
			_, err = full.ExecContext(ctx, args...)
		} else {
			_, err = tx.ExecContext(ctx, insertSQL(s.dialect, schema, end-start), args...)
		}
		if err != nil {
			return 0, fmt.Errorf("replace %s: insert rows %d-%d: %w", schema.name, start, end-1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("replace %s: commit: %w", schema.name, err)
	}
	return len(rows), nil
}

// rowsPerStatement caps the configured batch size so one statement stays
// under SQLite's bound-parameter limit.
func (s *Store) rowsPerStatement(cols int) int {
	if _, ok := s.dialect.(sqliteDialect); ok {
		return min(s.batchSize, sqliteMaxVariables/cols)
	}
	return s.batchSize
}

func createTableSQL[T any](d dialect, schema tableSchema[T]) string {
	defs := make([]string, len(schema.columns))
	for i, c := range schema.columns {
		defs[i] = quote(c.name) + " " + d.columnType(c.kind)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quote(schema.name), strings.Join(defs, ", "))
}

func insertSQL[T any](d dialect, schema tableSchema[T], rows int) string {
	cols := make([]string, len(schema.columns))
	for i, name := range schema.names() {
		cols[i] = quote(name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", quote(schema.name), strings.Join(cols, ", "))
	n := 1
	for r := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range schema.columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}
