package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"alert-engine/internal/alert"
)

// The medications and purchase_orders tables are owned by the inventory
// collaborators; this engine only reads the columns it classifies on.

const medicationColumns = `id, name, manufacturer, presentation, stock, min_stock, expiry_date, batch`

// MedicationSubject returns the monitored-subject snapshot for a medication,
// or nil when the medication does not exist or is soft-deleted.
func (db *DB) MedicationSubject(ctx context.Context, id string) (*alert.Subject, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM medications
		WHERE id = $1 AND deleted = FALSE
	`, medicationColumns)

	s, err := scanMedicationSubject(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medication subject: %w", err)
	}
	return s, nil
}

// StockSubjects lists the medications eligible for the stock scan: active,
// not deleted, and with a configured minimum threshold.
func (db *DB) StockSubjects(ctx context.Context) ([]*alert.Subject, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM medications
		WHERE deleted = FALSE AND active = TRUE AND min_stock IS NOT NULL
		ORDER BY name
	`, medicationColumns)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock subjects: %w", err)
	}
	defer rows.Close()

	return collectMedicationSubjects(rows)
}

// ExpirySubjects lists the medications whose expiry date falls on or before
// the given horizon, including those already past it.
func (db *DB) ExpirySubjects(ctx context.Context, until time.Time) ([]*alert.Subject, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM medications
		WHERE deleted = FALSE AND active = TRUE AND expiry_date IS NOT NULL AND expiry_date <= $1
		ORDER BY expiry_date
	`, medicationColumns)

	rows, err := db.conn.QueryContext(ctx, query, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiry subjects: %w", err)
	}
	defer rows.Close()

	return collectMedicationSubjects(rows)
}

const orderColumns = `id, order_number, supplier_name, status, expected_date, received_at`

// OrderSubject returns the monitored-subject snapshot for a purchase order,
// or nil when the order does not exist.
func (db *DB) OrderSubject(ctx context.Context, id string) (*alert.Subject, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM purchase_orders
		WHERE id = $1
	`, orderColumns)

	s, err := scanOrderSubject(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order subject: %w", err)
	}
	return s, nil
}

// DelayedOrders lists sent purchase orders whose expected delivery date lies
// strictly before the given day.
func (db *DB) DelayedOrders(ctx context.Context, before time.Time) ([]*alert.Subject, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM purchase_orders
		WHERE status = $1 AND expected_date IS NOT NULL AND expected_date < $2
		ORDER BY expected_date
	`, orderColumns)

	rows, err := db.conn.QueryContext(ctx, query, alert.OrderStatusSent, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list delayed orders: %w", err)
	}
	defer rows.Close()

	var subjects []*alert.Subject
	for rows.Next() {
		s, err := scanOrderSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

func scanMedicationSubject(row rowScanner) (*alert.Subject, error) {
	var (
		s            alert.Subject
		manufacturer sql.NullString
		presentation sql.NullString
		stock        sql.NullInt64
		minStock     sql.NullInt64
		expiryDate   sql.NullTime
		batch        sql.NullString
	)

	err := row.Scan(&s.ID, &s.Name, &manufacturer, &presentation, &stock, &minStock, &expiryDate, &batch)
	if err != nil {
		return nil, err
	}

	s.Kind = alert.SubjectMedication
	s.Manufacturer = manufacturer.String
	s.Detail = presentation.String
	if stock.Valid {
		s.Stock = alert.IntPtr(int(stock.Int64))
	}
	if minStock.Valid {
		s.MinStock = alert.IntPtr(int(minStock.Int64))
	}
	if expiryDate.Valid {
		s.ExpiryDate = alert.TimePtr(expiryDate.Time)
	}
	s.Batch = batch.String

	return &s, nil
}

func collectMedicationSubjects(rows *sql.Rows) ([]*alert.Subject, error) {
	var subjects []*alert.Subject
	for rows.Next() {
		s, err := scanMedicationSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medication subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

func scanOrderSubject(row rowScanner) (*alert.Subject, error) {
	var (
		s            alert.Subject
		supplier     sql.NullString
		expectedDate sql.NullTime
		receivedAt   sql.NullTime
	)

	err := row.Scan(&s.ID, &s.OrderNumber, &supplier, &s.Status, &expectedDate, &receivedAt)
	if err != nil {
		return nil, err
	}

	s.Kind = alert.SubjectPurchaseOrder
	s.Name = "Order " + s.OrderNumber
	s.Supplier = supplier.String
	if expectedDate.Valid {
		s.ExpectedDate = alert.TimePtr(expectedDate.Time)
	}
	s.Received = receivedAt.Valid || s.Status == "received"

	return &s, nil
}
