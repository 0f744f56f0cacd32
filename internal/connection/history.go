package connection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ErrReceiverRequired is returned by history queries without a receiver id.
var ErrReceiverRequired = errors.New("connection: receiver id is required")

// HistoryEntry is one persisted connection attempt.
type HistoryEntry struct {
	ID              int64           `json:"id"`
	ReceiverID      string          `json:"receiverId"`
	SenderID        string          `json:"senderId,omitempty"`
	Operation       string          `json:"operation"`
	Status          Status          `json:"status"`
	ControlURL      string          `json:"controlUrl,omitempty"`
	HTTPStatus      int             `json:"httpStatus,omitempty"`
	Error           string          `json:"error,omitempty"`
	TransportParams json.RawMessage `json:"transportParams,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// HistoryRepository persists connection attempts.
type HistoryRepository interface {
	Append(ctx context.Context, entry HistoryEntry) error
	ListByReceiver(ctx context.Context, receiverID string, limit int) ([]HistoryEntry, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository on the
// connection_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a repository on an open, migrated
// database.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Append inserts entry. A zero CreatedAt is stored as the current time.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entry: Attempt to persist; ReceiverID, Operation and Status are required
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) Append(ctx context.Context, entry HistoryEntry) error {
	if entry.ReceiverID == "" {
		return ErrReceiverRequired
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connection_history
		 (receiver_id, sender_id, operation, status, control_url, http_status, error, transport_params, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ReceiverID,
		nullString(entry.SenderID),
		entry.Operation,
		string(entry.Status),
		nullString(entry.ControlURL),
		nullInt(entry.HTTPStatus),
		nullString(entry.Error),
		nullString(string(entry.TransportParams)),
		entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting connection history: %w", err)
	}
	return nil
}

// ListByReceiver returns recent attempts for a receiver, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - receiverID: Receiver to query
//   - limit: Maximum entries to return (default 50, max 200)
func (r *SQLiteHistoryRepository) ListByReceiver(ctx context.Context, receiverID string, limit int) ([]HistoryEntry, error) {
	if receiverID == "" {
		return nil, ErrReceiverRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, receiver_id, sender_id, operation, status, control_url, http_status, error, transport_params, created_at
		 FROM connection_history
		 WHERE receiver_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		receiverID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying connection history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e                                     HistoryEntry
			senderID, controlURL, errText, params sql.NullString
			httpStatus                            sql.NullInt64
			status                                string
			createdAt                             int64
		)
		if err := rows.Scan(&e.ID, &e.ReceiverID, &senderID, &e.Operation, &status,
			&controlURL, &httpStatus, &errText, &params, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning connection history: %w", err)
		}
		e.SenderID = senderID.String
		e.Status = Status(status)
		e.ControlURL = controlURL.String
		e.HTTPStatus = int(httpStatus.Int64)
		e.Error = errText.String
		if params.Valid && params.String != "" {
			e.TransportParams = json.RawMessage(params.String)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries created before olderThan and returns how many
// were removed.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM connection_history WHERE created_at < ?",
		olderThan.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning connection history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned history: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
