package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ticket-runners/internal/config"
	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"

	"github.com/lib/pq"
)

var ErrDuplicateOutcome = errors.New("payment outcome already recorded")

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates the audit store on an existing connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment outcome tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment outcome tables: %w", err)
	}

	log.Info("DATABASE", "Payment outcome storage initialized")
	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", "Connecting to PostgreSQL for payment outcome audit")

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and payment outcome tables ready")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payment_outcomes table if not exists")

	outcomesQuery := `
    CREATE TABLE IF NOT EXISTS payment_outcomes (
        transaction_id VARCHAR(64) PRIMARY KEY,
        payer_id VARCHAR(36) NOT NULL,
        amount DECIMAL(10,2) NOT NULL,
        kind VARCHAR(20) NOT NULL,
        payload JSONB NOT NULL,
        status VARCHAR(20) NOT NULL DEFAULT 'received',
        last_error TEXT,
        received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        forwarded_at TIMESTAMP
    );
    `

	if _, err := s.db.Exec(outcomesQuery); err != nil {
		return fmt.Errorf("failed to create payment_outcomes table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payment_outcomes_status ON payment_outcomes(status);",
		"CREATE INDEX IF NOT EXISTS idx_payment_outcomes_payer ON payment_outcomes(payer_id);",
		"CREATE INDEX IF NOT EXISTS idx_payment_outcomes_received ON payment_outcomes(received_at);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Payment outcome tables and indexes ready")
	return nil
}

// SaveOutcome records a callback. A repeated transaction id returns
// ErrDuplicateOutcome so the caller can skip re-forwarding.
func (s *PostgreSQLStore) SaveOutcome(outcome models.PaymentOutcome) error {
	s.log.LogDatabase("INSERT", "payment_outcomes", fmt.Sprintf("Recording outcome %s", outcome.TransactionID))

	query := `
    INSERT INTO payment_outcomes (
        transaction_id, payer_id, amount, kind, payload, status, received_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	_, err := s.db.Exec(query,
		outcome.TransactionID,
		outcome.PayerID,
		outcome.Amount.String(),
		string(outcome.Kind),
		outcome.RawPayload(),
		string(StatusReceived),
		outcome.ReceivedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicateOutcome
		}
		return fmt.Errorf("failed to save payment outcome: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) GetOutcome(transactionID string) (*StoredOutcome, error) {
	query := `
    SELECT payload, status, COALESCE(last_error, ''), COALESCE(forwarded_at::text, '')
    FROM payment_outcomes WHERE transaction_id = $1
    `

	var (
		payload []byte
		stored  StoredOutcome
	)
	err := s.db.QueryRow(query, transactionID).Scan(
		&payload, &stored.Status, &stored.LastError, &stored.ForwardedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outcome %s: %w", transactionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment outcome: %w", err)
	}

	if err := json.Unmarshal(payload, &stored.Outcome); err != nil {
		return nil, fmt.Errorf("failed to decode payment outcome payload: %w", err)
	}
	return &stored, nil
}

func (s *PostgreSQLStore) MarkForwarded(transactionID string) error {
	s.log.LogDatabase("UPDATE", "payment_outcomes", fmt.Sprintf("Marking outcome %s forwarded", transactionID))

	query := `
    UPDATE payment_outcomes
    SET status = $1, last_error = NULL, forwarded_at = CURRENT_TIMESTAMP
    WHERE transaction_id = $2
    `
	_, err := s.db.Exec(query, string(StatusForwarded), transactionID)
	if err != nil {
		return fmt.Errorf("failed to mark outcome forwarded: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) MarkFailed(transactionID, reason string) error {
	query := `
    UPDATE payment_outcomes SET status = $1, last_error = $2 WHERE transaction_id = $3
    `
	_, err := s.db.Exec(query, string(StatusFailed), reason, transactionID)
	if err != nil {
		return fmt.Errorf("failed to mark outcome failed: %w", err)
	}
	return nil
}

// ListPending returns outcomes that never made it to the ownership service,
// oldest first, for the retry sweep.
func (s *PostgreSQLStore) ListPending(limit int) ([]StoredOutcome, error) {
	query := `
    SELECT payload, status, COALESCE(last_error, ''), COALESCE(forwarded_at::text, '')
    FROM payment_outcomes
    WHERE status IN ($1, $2)
    ORDER BY received_at
    LIMIT $3
    `

	rows, err := s.db.Query(query, string(StatusReceived), string(StatusFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending outcomes: %w", err)
	}
	defer rows.Close()

	var out []StoredOutcome
	for rows.Next() {
		var (
			payload []byte
			stored  StoredOutcome
		)
		if err := rows.Scan(&payload, &stored.Status, &stored.LastError, &stored.ForwardedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending outcome: %w", err)
		}
		if err := json.Unmarshal(payload, &stored.Outcome); err != nil {
			s.log.Warn("DATABASE", fmt.Sprintf("Skipping undecodable outcome payload: %v", err))
			continue
		}
		out = append(out, stored)
	}
	return out, rows.Err()
}

func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
