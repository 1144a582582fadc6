// internal/workers/notification/escalate-emergency/handler_test.go
package escalateemergency

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	calls         int
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.calls++
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       int
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	return m.PublishFunc(ctx, params, optFns...)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		EmailEnabled:    true,
		SMSEnabled:      true,
		FromEmail:       "alerts@triage.example.org",
		SenderID:        "TRIAGE",
		DefaultFacility: "phc-default",
		MaxContacts:     3,
		Timeout:         5 * time.Second,
	}
}

func createTestInput() *Input {
	return &Input{
		RequestID:  "req-001",
		FacilityID: "phc-01",
		Language:   "hi",
		Indicators: []string{"unconscious", "high fever"},
		Location:   "Ward 4, Barasat",
	}
}

func okSES(t *testing.T) *MockSESService {
	return &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			assert.Equal(t, "alerts@triage.example.org", *params.Source)
			assert.True(t, strings.HasPrefix(*params.Message.Subject.Data, "EMERGENCY triage alert"))
			assert.Contains(t, *params.Message.Body.Text.Data, "unconscious, high fever")
			return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
		},
	}
}

func okSNS(t *testing.T) *MockSNSService {
	return &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			assert.Contains(t, *params.Message, "req-001")
			assert.Equal(t, "TRIAGE", *params.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue)
			return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
		},
	}
}

func contactRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "phone", "facility_id"}).
		AddRow("hw-1", "Asha Devi", "asha@example.org", "+919800000001", "phc-01").
		AddRow("hw-2", "Rahim Khan", "", "+919800000002", "phc-01")
}

func newTestHandler(t *testing.T, db *sql.DB, sesSvc SESService, snsSvc SNSService) *Handler {
	h := NewHandler(createTestConfig(), db, sesSvc, snsSvc, logger.NewTestLogger(t))
	h.now = func() time.Time { return time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC) }
	return h
}

// ==========================
// Execute Tests
// ==========================

func TestExecute_SendsToAllOnCallContacts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, name, COALESCE\(email, ''\)`).
		WithArgs("phc-01", 3).
		WillReturnRows(contactRows())

	sesSvc, snsSvc := okSES(t), okSNS(t)
	h := newTestHandler(t, db, sesSvc, snsSvc)

	output, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)

	assert.Equal(t, StatusSent, output.Status)
	assert.Equal(t, "2024-07-01T08:30:00Z", output.SentAt)
	assert.NotEmpty(t, output.EscalationID)
	require.Len(t, output.Notifications, 3)
	assert.Equal(t, 1, sesSvc.calls)
	assert.Equal(t, 2, snsSvc.calls)

	assert.Equal(t, "hw-1", output.Notifications[0].RecipientID)
	assert.Equal(t, ChannelEmail, output.Notifications[0].Channel)
	assert.Equal(t, "ses-1", output.Notifications[0].MessageID)
	assert.Equal(t, ChannelSMS, output.Notifications[1].Channel)
	assert.Equal(t, "hw-2", output.Notifications[2].RecipientID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_DefaultFacility(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM health_workers`).
		WithArgs("phc-default", 3).
		WillReturnRows(contactRows())

	h := newTestHandler(t, db, okSES(t), okSNS(t))
	input := createTestInput()
	input.FacilityID = ""
	input.Location = ""

	output, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, output.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_PartialAndFailedDelivery(t *testing.T) {
	failingSNS := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	t.Run("email succeeds, sms fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery(`FROM health_workers`).WillReturnRows(contactRows())

		h := newTestHandler(t, db, okSES(t), failingSNS)
		output, err := h.Execute(context.Background(), createTestInput())
		require.NoError(t, err)
		assert.Equal(t, StatusPartial, output.Status)
		assert.Equal(t, StatusFailed, output.Notifications[1].Status)
	})

	t.Run("every send fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery(`FROM health_workers`).WillReturnRows(contactRows())

		h := newTestHandler(t, db, okSES(t), failingSNS)
		h.config.EmailEnabled = false
		_, err = h.Execute(context.Background(), createTestInput())
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEscalationFailed))
	})
}

func TestExecute_ChannelsDisabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(`FROM health_workers`).WillReturnRows(contactRows())

	sesSvc, snsSvc := okSES(t), okSNS(t)
	h := newTestHandler(t, db, sesSvc, snsSvc)
	h.config.EmailEnabled = false
	h.config.SMSEnabled = false

	output, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, output.Status)
	assert.Empty(t, output.Notifications)
	assert.Zero(t, sesSvc.calls)
	assert.Zero(t, snsSvc.calls)
}

func TestExecute_ContactErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(mock sqlmock.Sqlmock)
		wantCode apperrors.ErrorCode
	}{
		{
			name: "lookup fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM health_workers`).WillReturnError(errors.New("connection refused"))
			},
			wantCode: apperrors.ErrCodeContactLookupFailed,
		},
		{
			name: "nobody on call",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM health_workers`).
					WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "facility_id"}))
			},
			wantCode: apperrors.ErrCodeNoOnCallContacts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setup(mock)

			h := newTestHandler(t, db, okSES(t), okSNS(t))
			_, err = h.Execute(context.Background(), createTestInput())
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecute_MissingRequestID(t *testing.T) {
	h := newTestHandler(t, nil, okSES(t), okSNS(t))
	_, err := h.Execute(context.Background(), &Input{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInputError))
}

// ==========================
// Template Tests
// ==========================

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		data map[string]interface{}
		want string
	}{
		{"fills values", "Request {{requestId}}", map[string]interface{}{"requestId": "r1"}, "Request r1"},
		{"drops unknown placeholders", "A{{missing}}B", map[string]interface{}{}, "AB"},
		{"formats non-strings", "n={{n}}", map[string]interface{}{"n": 3}, "n=3"},
		{"nil becomes empty", "x{{v}}y", map[string]interface{}{"v": nil}, "xy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderTemplate(tt.tmpl, tt.data))
		})
	}
}

func TestMessageData(t *testing.T) {
	data := messageData(&Input{RequestID: "r1"}, "phc-9")
	assert.Equal(t, "unspecified", data["indicators"])
	assert.Equal(t, "not provided", data["location"])
	assert.Equal(t, "phc-9", data["facilityId"])
}
