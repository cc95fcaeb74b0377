// Package store persists processed-invoice bookkeeping: one row per order number and
// one row per surviving service line. The existence of an order number here is the
// single source of truth for "already processed".
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"facturas/pkg/models"
)

var (
	// ErrDuplicateOrder is returned when an order number is already recorded.
	ErrDuplicateOrder = errors.New("order number already processed")

	// ErrInvoiceNotFound is returned by DeleteInvoice for an unknown id.
	ErrInvoiceNotFound = errors.New("invoice not found")
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

// Open connects to postgres through pgx or to a sqlite file through modernc.
func Open(dialect Dialect, dsn string) (*sql.DB, error) {
	var driver string
	switch dialect {
	case Postgres:
		driver = "pgx"
	case SQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// rebind rewrites ? placeholders as $n for postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if r.dialect == Postgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025080101)); err != nil {
			return fmt.Errorf("acquire schema lock: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, schemaDDL(r.dialect)); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func schemaDDL(dialect Dialect) string {
	id, ts := "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	if dialect == SQLite {
		id, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP"
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS processed_invoices (
	id %[1]s,
	orden_servicio TEXT NOT NULL UNIQUE,
	patient_name TEXT,
	patient_id TEXT,
	processed_date %[2]s NOT NULL,
	excel_row_count INTEGER NOT NULL DEFAULT 0,
	image_path TEXT
);

CREATE TABLE IF NOT EXISTS invoice_services (
	id %[1]s,
	invoice_id BIGINT NOT NULL REFERENCES processed_invoices(id) ON DELETE CASCADE,
	service_code TEXT,
	service_description TEXT,
	service_value BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_invoice_services_invoice_id ON invoice_services(invoice_id);
CREATE INDEX IF NOT EXISTS idx_processed_invoices_date ON processed_invoices(processed_date DESC);
`, id, ts)
}

// ExistsByOrderNumber reports whether orderNumber was already processed.
func (r *Repository) ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT COUNT(1) FROM processed_invoices WHERE orden_servicio = ?`),
		orderNumber,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check order number: %w", err)
	}
	return n > 0, nil
}

// PersistInvoice records the invoice and its surviving services in one transaction
// and returns the new invoice id.
func (r *Repository) PersistInvoice(ctx context.Context, rec *models.InvoiceRecord, ledgerRows int, imagePath string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin invoice tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var id int64
	err = tx.QueryRowContext(ctx, r.rebind(`
INSERT INTO processed_invoices (orden_servicio, patient_name, patient_id, processed_date, excel_row_count, image_path)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`),
		rec.OrderNumber, rec.PatientName, rec.PatientID, r.now(), ledgerRows, imagePath,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateOrder, rec.OrderNumber)
		}
		return 0, fmt.Errorf("insert invoice: %w", err)
	}

	insertService := r.rebind(`
INSERT INTO invoice_services (invoice_id, service_code, service_description, service_value)
VALUES (?, ?, ?, ?)`)
	for _, s := range rec.Services {
		if _, err := tx.ExecContext(ctx, insertService, id, s.Code, s.Description, s.Value.Pesos); err != nil {
			return 0, fmt.Errorf("insert service %s: %w", s.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit invoice tx: %w", err)
	}
	return id, nil
}

// ListInvoices returns processed invoices newest first with their service summaries.
// A limit of zero or less returns everything.
func (r *Repository) ListInvoices(ctx context.Context, limit int) ([]models.DedupRecord, error) {
	query := `
SELECT id, orden_servicio, COALESCE(patient_name, ''), COALESCE(patient_id, ''), processed_date, excel_row_count, COALESCE(image_path, '')
FROM processed_invoices
ORDER BY processed_date DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		query += "\nLIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []models.DedupRecord
	index := make(map[int64]int)
	for rows.Next() {
		var rec models.DedupRecord
		if err := rows.Scan(&rec.ID, &rec.OrderNumber, &rec.PatientName, &rec.PatientID, &rec.ProcessedAt, &rec.LedgerRowCount, &rec.ImagePath); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]interface{}, len(out))
	for i, rec := range out {
		ids[i] = rec.ID
	}
	svcQuery := `
SELECT invoice_id, COALESCE(service_code, ''), COALESCE(service_description, '')
FROM invoice_services
WHERE invoice_id IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + `)
ORDER BY invoice_id, id`

	svcRows, err := r.db.QueryContext(ctx, r.rebind(svcQuery), ids...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer svcRows.Close()

	for svcRows.Next() {
		var invoiceID int64
		var code, description string
		if err := svcRows.Scan(&invoiceID, &code, &description); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		if i, ok := index[invoiceID]; ok {
			out[i].Services = append(out[i].Services, code+": "+description)
		}
	}
	if err := svcRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}

	return out, nil
}

// DeleteInvoice removes an invoice and its services. The ledger is not touched.
func (r *Repository) DeleteInvoice(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM invoice_services WHERE invoice_id = ?`), id); err != nil {
		return fmt.Errorf("delete services: %w", err)
	}

	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM processed_invoices WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete invoice rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrInvoiceNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}
	return false
}
