package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fms-alerts/internal/models"
)

var messageColumns = []string{
	"id", "alert_id", "alert_type", "to_phone_number", "template_code", "language", "status",
	"provider_message_id", "attempts", "last_error", "placeholders", "body", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func testAlert() *models.Alert {
	return &models.Alert{
		IdempotencyKey: IdempotencyKey("V1", "Overspeed", "2025-01-01T00:00:00Z"),
		VehicleID:      "V1",
		AlertType:      "Overspeed",
		Payload:        json.RawMessage(`{"vehicle_id":"V1"}`),
	}
}

func testMessage() *models.Message {
	return &models.Message{
		ToPhoneNumber: "+966500000000",
		TemplateCode:  "overspeed_alert_ar",
		Language:      "ar",
		Placeholders:  []string{"V1", "Overspeed", "", "2025-01-01T00:00:00Z", "", "", "", ""},
	}
}

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("V1", "Overspeed", "2025-01-01T00:00:00Z")
	b := IdempotencyKey("V1", "Overspeed", "2025-01-01T00:00:00Z")
	c := IdempotencyKey("V1", "Overspeed", "2025-01-01T00:00:01Z")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.Equal(t, "a52dd81bfd5e4e66d96b9f598382f6cbf8c5c3897654e6ae9055e03620fcf38e", IdempotencyKey("a", "b", "c"))
}

func TestCreateAlertWithMessage_Created(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alerts`).
		WithArgs(sqlmock.AnyArg(), nil, "V1", nil, "Overspeed", nil, `{"vehicle_id":"V1"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), now))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(int64(10), "+966500000000", "overspeed_alert_ar", "ar", "pending", 0,
			`["V1","Overspeed","","2025-01-01T00:00:00Z","","","",""]`, "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(20), now, now))
	mock.ExpectCommit()

	msg := testMessage()
	res, err := s.CreateAlertWithMessage(context.Background(), testAlert(), msg)
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, int64(10), res.AlertID)
	assert.Equal(t, int64(20), res.MessageID)
	assert.Equal(t, int64(10), msg.AlertID)
	assert.Equal(t, "Overspeed", msg.AlertType)
	assert.Equal(t, models.StatusPending, msg.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertWithMessage_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)
	alert := testAlert()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alerts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta(selectAlertIDSQL)).
		WithArgs(alert.IdempotencyKey).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectRollback()

	res, err := s.CreateAlertWithMessage(context.Background(), alert, testMessage())
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, int64(10), res.AlertID)
	assert.Zero(t, res.MessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertWithMessage_MessageInsertFailsRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alerts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), time.Now()))
	mock.ExpectQuery(`INSERT INTO messages`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	res, err := s.CreateAlertWithMessage(context.Background(), testAlert(), testMessage())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "insert message")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertWithMessage_RequiresKey(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.CreateAlertWithMessage(context.Background(), &models.Alert{}, testMessage())
	assert.Error(t, err)
}

func TestCreateDiagnosticAlert_UsesRandomKey(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO alerts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))
	mock.ExpectQuery(`INSERT INTO messages`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(2), now, now))
	mock.ExpectCommit()

	alert := testAlert()
	res, err := s.CreateDiagnosticAlert(context.Background(), alert, testMessage())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, strings.HasPrefix(alert.IdempotencyKey, DiagnosticKeyPrefix))
}

func TestGetMessage(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM messages m JOIN alerts a ON a.id = m.alert_id WHERE m.id = \$1`).
		WithArgs(int64(20)).
		WillReturnRows(sqlmock.NewRows(messageColumns).AddRow(
			int64(20), int64(10), "door_open", "+966500000000", "plain_text_fallback", "ar", "failed",
			nil, 2, `{"requestError":{}}`, `[]`, "Vehicle V1 triggered x at 1:00 PM.", now, now,
		))

	msg, err := s.GetMessage(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, msg.Status)
	assert.Equal(t, 2, msg.Attempts)
	assert.Nil(t, msg.ProviderMessageID)
	require.NotNil(t, msg.LastError)
	assert.True(t, msg.IsPlainText())
	assert.Empty(t, msg.Placeholders)
	assert.Equal(t, "Vehicle V1 triggered x at 1:00 PM.", msg.Text)
	assert.Equal(t, "door_open", msg.AlertType)
}

func TestGetMessage_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM messages`).
		WillReturnRows(sqlmock.NewRows(messageColumns))

	_, err := s.GetMessage(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveMessage(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	msg := testMessage()
	msg.ID = 20
	msg.Attempts = 1
	msg.MarkSent("prov-1")

	mock.ExpectQuery(`UPDATE messages`).
		WithArgs(int64(20), "sent", "prov-1", 1, nil).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	require.NoError(t, s.SaveMessage(context.Background(), msg))
	assert.Equal(t, now, msg.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMessage_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE messages`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := s.SaveMessage(context.Background(), &models.Message{ID: 5, Status: models.StatusFailed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMessagesByStatus(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	cutoff := now.Add(-2 * time.Minute)

	mock.ExpectQuery(`SELECT (.+) FROM messages m JOIN alerts a ON a.id = m.alert_id WHERE m.status = \$1 AND m.updated_at < \$2 AND m.attempts < \$3`).
		WithArgs("pending", cutoff, 3, 50).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow(int64(1), int64(1), "SOS", "+1", "sos_alert_ar", "ar", "pending", nil, 0, nil, `["a"]`, "", now, now).
			AddRow(int64(2), int64(2), "SOS", "+2", "sos_alert_ar", "ar", "pending", nil, 0, nil, `["b"]`, "", now, now))

	msgs, err := s.ListMessagesByStatus(context.Background(), models.StatusPending, cutoff, 3, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"b"}, msgs[1].Placeholders)
}

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS alerts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS messages(.|\n)+VARCHAR\(255\)(.|\n)+messages \(status, updated_at\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE messages ALTER COLUMN to_phone_number TYPE VARCHAR\(255\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
