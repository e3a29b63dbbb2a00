package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pollenjp/ipa-shiken-fetcher/logger"
	"github.com/pollenjp/ipa-shiken-fetcher/models"
)

// Journal is the SQLite delivery journal. Each fetch-extract-send step of a
// cycle becomes one row. It is an audit trail; nothing reads it back to
// decide what to send.
type Journal struct {
	db     *sql.DB
	logger logger.Logger
}

// OpenJournal opens (creating if needed) the journal at dbPath, which must
// not be empty.
func OpenJournal(dbPath string, log logger.Logger) (*Journal, error) {
	if dbPath == "" {
		return nil, errors.New("open journal: empty path")
	}
	if log == nil {
		log = logger.NewNop()
	}

	log.Info("opening delivery journal", logger.String("path", dbPath))
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	// SQLite serializes writers anyway; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &Journal{db: db, logger: log}
	if err := j.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal tables: %w", err)
	}

	return j, nil
}

func (j *Journal) createTables(ctx context.Context) error {
	createDeliveriesTable := `
	CREATE TABLE IF NOT EXISTS deliveries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		run_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		source_url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);`

	createIndexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_deliveries_run_id ON deliveries(run_id);",
		"CREATE INDEX IF NOT EXISTS idx_deliveries_source_id ON deliveries(source_id);",
		"CREATE INDEX IF NOT EXISTS idx_deliveries_fingerprint ON deliveries(fingerprint);",
	}

	if _, err := j.db.ExecContext(ctx, createDeliveriesTable); err != nil {
		return fmt.Errorf("create deliveries table: %w", err)
	}
	for _, q := range createIndexes {
		if _, err := j.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Record inserts delivery. An empty ID gets a fresh UUID and a zero
// CreatedAt becomes now.
func (j *Journal) Record(ctx context.Context, delivery models.Delivery) error {
	if delivery.ID == "" {
		delivery.ID = uuid.NewString()
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, run_id, source_id, source_url, title, fingerprint, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		delivery.ID, delivery.RunID, delivery.SourceID, delivery.SourceURL, delivery.Title,
		delivery.Fingerprint, string(delivery.Status), delivery.Error, delivery.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert delivery %s: %w", delivery.ID, err)
	}

	j.logger.Debug("delivery journaled",
		logger.String("id", delivery.ID),
		logger.String("run_id", delivery.RunID),
		logger.String("status", string(delivery.Status)))
	return nil
}

const selectDelivery = `
	SELECT id, run_id, source_id, source_url, title, fingerprint, status, error, created_at
	FROM deliveries`

// Recent returns up to limit deliveries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.Delivery, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx, selectDelivery+" ORDER BY seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return deliveries, nil
}

// LastSent returns the newest successful delivery for sourceID, or nil when
// the source never delivered.
func (j *Journal) LastSent(ctx context.Context, sourceID string) (*models.Delivery, error) {
	row := j.db.QueryRowContext(ctx,
		selectDelivery+" WHERE source_id = ? AND status = ? ORDER BY seq DESC LIMIT 1",
		sourceID, string(models.StatusSent))

	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// CountByStatus reports how many deliveries the given run produced per status.
// An empty runID counts the whole journal.
func (j *Journal) CountByStatus(ctx context.Context, runID string) (map[models.DeliveryStatus]int, error) {
	query := "SELECT status, COUNT(*) FROM deliveries GROUP BY status"
	var args []any
	if runID != "" {
		query = "SELECT status, COUNT(*) FROM deliveries WHERE run_id = ? GROUP BY status"
		args = append(args, runID)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DeliveryStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[models.DeliveryStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func (j *Journal) Count(ctx context.Context) (int, error) {
	var count int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deliveries").Scan(&count); err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (models.Delivery, error) {
	var d models.Delivery
	var status string
	err := row.Scan(&d.ID, &d.RunID, &d.SourceID, &d.SourceURL, &d.Title,
		&d.Fingerprint, &status, &d.Error, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, err
		}
		return d, fmt.Errorf("scan delivery: %w", err)
	}
	d.Status = models.DeliveryStatus(status)
	return d, nil
}

func (j *Journal) HealthCheck(ctx context.Context) error {
	if j == nil || j.db == nil {
		return errors.New("journal is not open")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping journal: %w", err)
	}
	var tmp int
	if err := j.db.QueryRowContext(ctx, "SELECT 1").Scan(&tmp); err != nil {
		return fmt.Errorf("journal query test: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// GracefulShutdown closes the journal, giving up after timeout.
func (j *Journal) GracefulShutdown(timeout time.Duration) error {
	if j.db == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- j.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			j.logger.Error("closing journal failed", logger.Error(err))
			return err
		}
		j.logger.Info("journal closed")
		return nil
	case <-ctx.Done():
		j.logger.Warn("journal close timed out", logger.Duration("timeout", timeout))
		return errors.New("journal shutdown timeout")
	}
}
