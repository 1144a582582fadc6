// internal/workers/notification/escalate-emergency/handler.go
package escalateemergency

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/common/metrics"
	"medical-triage/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "escalate-emergency"
)

const contactsQuery = `SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), facility_id
FROM health_workers
WHERE facility_id = $1 AND on_call
ORDER BY priority, id
LIMIT $2`

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config       *Config
	db           *sql.DB
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
	sesClient    SESService
	snsClient    SNSService
	now          func() time.Time
}

func NewHandler(config *Config, db *sql.DB, sesClient SESService, snsClient SNSService, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
		sesClient:    sesClient,
		snsClient:    snsClient,
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.RequestID == "" {
		return nil, apperrors.NewInputError("requestId is required")
	}

	facility := input.FacilityID
	if facility == "" {
		facility = h.config.DefaultFacility
	}

	contacts, err := h.onCallContacts(ctx, facility)
	if err != nil {
		return nil, apperrors.NewContactLookupFailedError(err)
	}
	if len(contacts) == 0 {
		return nil, apperrors.NewNoOnCallContactsError(facility)
	}

	data := messageData(input, facility)
	subject := renderTemplate(subjectTemplate, data)
	body := renderTemplate(bodyTemplate, data)
	sms := renderTemplate(smsTemplate, data)

	sentAt := h.now().UTC().Format(time.RFC3339)
	output := &Output{
		EscalationID:  uuid.New().String(),
		Notifications: []models.Notification{},
		SentAt:        sentAt,
	}

	var lastErr error
	lastChannel := ""
	sent, failed := 0, 0
	record := func(contact models.HealthWorker, channel, messageID string, err error) {
		n := models.Notification{
			ID:          uuid.New().String(),
			RecipientID: contact.ID,
			Channel:     channel,
			Status:      StatusSent,
			MessageID:   messageID,
			SentAt:      sentAt,
		}
		if err != nil {
			n.Status = StatusFailed
			lastErr, lastChannel = err, channel
			failed++
			h.logger.Error("escalation send failed", map[string]interface{}{
				"channel":     channel,
				"recipientId": contact.ID,
				"error":       err.Error(),
			})
		} else {
			sent++
		}
		metrics.EscalationsSent.WithLabelValues(channel, n.Status).Inc()
		output.Notifications = append(output.Notifications, n)
	}

	for _, contact := range contacts {
		if h.config.EmailEnabled && contact.Email != "" {
			id, err := h.sendEmail(ctx, contact.Email, subject, body)
			record(contact, ChannelEmail, id, err)
		}
		if h.config.SMSEnabled && contact.Phone != "" {
			id, err := h.sendSMS(ctx, contact.Phone, sms)
			record(contact, ChannelSMS, id, err)
		}
	}

	switch {
	case sent == 0 && failed == 0:
		output.Status = StatusDisabled
	case sent == 0:
		return nil, apperrors.NewEscalationFailedError(lastChannel, lastErr)
	case failed > 0:
		output.Status = StatusPartial
	default:
		output.Status = StatusSent
	}

	h.logger.Info("emergency escalated", map[string]interface{}{
		"requestId":  input.RequestID,
		"facilityId": facility,
		"contacts":   len(contacts),
		"sent":       sent,
		"failed":     failed,
		"status":     output.Status,
	})
	return output, nil
}

func (h *Handler) onCallContacts(ctx context.Context, facility string) ([]models.HealthWorker, error) {
	limit := h.config.MaxContacts
	if limit <= 0 {
		limit = 3
	}

	rows, err := h.db.QueryContext(ctx, contactsQuery, facility, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.HealthWorker
	for rows.Next() {
		var c models.HealthWorker
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.FacilityID); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) (string, error) {
	out, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

func (h *Handler) sendSMS(ctx context.Context, to, message string) (string, error) {
	attributes := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if h.config.SenderID != "" {
		attributes["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(h.config.SenderID),
		}
	}

	out, err := h.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(message),
		MessageAttributes: attributes,
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
