// internal/store/store.go
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fms-alerts/internal/common/database"
	"fms-alerts/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// errDuplicate rolls back the gate transaction; callers see CreateResult.Created == false.
	errDuplicate = errors.New("duplicate alert")
)

// DiagnosticKeyPrefix marks alerts created by the diagnostic send path.
const DiagnosticKeyPrefix = "test-"

// IdempotencyKey is the hex SHA-256 of "vehicleID|alertType|occurredAt".
func IdempotencyKey(vehicleID, alertType, occurredAt string) string {
	sum := sha256.Sum256([]byte(vehicleID + "|" + alertType + "|" + occurredAt))
	return hex.EncodeToString(sum[:])
}

// CreateResult reports the outcome of the idempotency gate.
type CreateResult struct {
	Created   bool  `json:"created"`
	AlertID   int64 `json:"alertId"`
	MessageID int64 `json:"messageId,omitempty"` // zero on duplicate
}

// Store persists alerts and messages in Postgres.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const (
	insertAlertSQL = `
		INSERT INTO alerts (idempotency_key, event_id, vehicle_id, customer_id, alert_type, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at`

	selectAlertIDSQL = `SELECT id FROM alerts WHERE idempotency_key = $1`

	insertMessageSQL = `
		INSERT INTO messages (alert_id, to_phone_number, template_code, language, status, attempts, placeholders, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	selectMessageSQL = `
		SELECT m.id, m.alert_id, a.alert_type, m.to_phone_number, m.template_code, m.language, m.status,
		       m.provider_message_id, m.attempts, m.last_error, m.placeholders, m.body, m.created_at, m.updated_at
		FROM messages m
		JOIN alerts a ON a.id = m.alert_id`

	updateMessageSQL = `
		UPDATE messages
		SET status = $2, provider_message_id = $3, attempts = $4, last_error = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
)

// CreateAlertWithMessage is the idempotency gate. The alert insert and the
// message insert share one transaction; on a key conflict nothing is written
// and the existing alert id is returned with Created == false.
func (s *Store) CreateAlertWithMessage(ctx context.Context, alert *models.Alert, msg *models.Message) (*CreateResult, error) {
	if alert.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}
	payload := alert.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	placeholders, err := json.Marshal(nonNil(msg.Placeholders))
	if err != nil {
		return nil, fmt.Errorf("encode placeholders: %w", err)
	}
	if msg.Status == "" {
		msg.Status = models.StatusPending
	}

	result := &CreateResult{}
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, insertAlertSQL,
			alert.IdempotencyKey, alert.EventID, alert.VehicleID, alert.CustomerID,
			alert.AlertType, alert.OccurredAt, string(payload),
		)
		if err := row.Scan(&alert.ID, &alert.CreatedAt); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("insert alert: %w", err)
			}
			if err := tx.QueryRowContext(ctx, selectAlertIDSQL, alert.IdempotencyKey).Scan(&result.AlertID); err != nil {
				return fmt.Errorf("select existing alert: %w", err)
			}
			return errDuplicate
		}

		msg.AlertID = alert.ID
		msg.AlertType = alert.AlertType
		row = tx.QueryRowContext(ctx, insertMessageSQL,
			msg.AlertID, msg.ToPhoneNumber, msg.TemplateCode, msg.Language,
			string(msg.Status), msg.Attempts, string(placeholders), msg.Text,
		)
		if err := row.Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		result.Created = true
		result.AlertID = alert.ID
		result.MessageID = msg.ID
		return nil
	})

	if errors.Is(err, errDuplicate) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateDiagnosticAlert stores a diagnostic alert under a random key so it never
// collides with real traffic.
func (s *Store) CreateDiagnosticAlert(ctx context.Context, alert *models.Alert, msg *models.Message) (*CreateResult, error) {
	alert.IdempotencyKey = DiagnosticKeyPrefix + uuid.NewString()
	return s.CreateAlertWithMessage(ctx, alert, msg)
}

// GetMessage loads a message by id.
func (s *Store) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, selectMessageSQL+` WHERE m.id = $1`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

// SaveMessage persists the delivery state of one attempt.
func (s *Store) SaveMessage(ctx context.Context, msg *models.Message) error {
	err := s.db.QueryRowContext(ctx, updateMessageSQL,
		msg.ID, string(msg.Status), msg.ProviderMessageID, msg.Attempts, msg.LastError,
	).Scan(&msg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %d: %w", msg.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("save message %d: %w", msg.ID, err)
	}
	return nil
}

// ListMessagesByStatus returns messages in status last touched before olderThan
// that still have attempts left.
func (s *Store) ListMessagesByStatus(ctx context.Context, status models.MessageStatus, olderThan time.Time, maxAttempts, limit int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		selectMessageSQL+` WHERE m.status = $1 AND m.updated_at < $2 AND m.attempts < $3 ORDER BY m.id LIMIT $4`,
		string(status), olderThan, maxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		msg          models.Message
		status       string
		providerID   sql.NullString
		lastError    sql.NullString
		placeholders []byte
	)
	err := row.Scan(
		&msg.ID, &msg.AlertID, &msg.AlertType, &msg.ToPhoneNumber, &msg.TemplateCode, &msg.Language, &status,
		&providerID, &msg.Attempts, &lastError, &placeholders, &msg.Text, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.Status = models.MessageStatus(status)
	if providerID.Valid {
		msg.ProviderMessageID = &providerID.String
	}
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	msg.Placeholders = []string{}
	if len(placeholders) > 0 {
		if err := json.Unmarshal(placeholders, &msg.Placeholders); err != nil {
			return nil, fmt.Errorf("decode placeholders: %w", err)
		}
	}
	return &msg, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
