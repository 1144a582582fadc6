package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/common/metrics"
	"medical-triage/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobClient struct {
	worker.JobClient
	completes int
}

func (f *fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	f.completes++
	return nil
}

func newJob(taskType, variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, Type: taskType, Variables: variables, Retries: 3}}
}

var textActivity = &registry.Activity{
	ID:       "normalize-query",
	TaskType: "normalize-query",
	InputSchema: map[string]interface{}{
		"type":       "object",
		"required":   []interface{}{"text"},
		"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string", "minLength": 1}},
	},
}

// ==========================
// Instrument
// ==========================

func TestInstrument_CountsCompletedJobs(t *testing.T) {
	taskType := "instrument-complete"
	handler := Instrument(taskType, func(client worker.JobClient, job entities.Job) {
		client.NewCompleteJobCommand()
	}, nil, logger.NewTestLogger(t))

	client := &fakeJobClient{}
	handler(client, newJob(taskType, `{}`))
	handler(client, newJob(taskType, `{}`))

	assert.Equal(t, 2, client.completes)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.WorkerJobsCompleted.WithLabelValues(taskType)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WorkerJobsActive.WithLabelValues(taskType)))
}

func TestInstrument_HandlerThatDoesNotComplete(t *testing.T) {
	taskType := "instrument-no-complete"
	called := false
	handler := Instrument(taskType, func(client worker.JobClient, job entities.Job) {
		called = true
	}, textActivity, logger.NewTestLogger(t))

	handler(&fakeJobClient{}, newJob(taskType, `{"text":"fever"}`))

	assert.True(t, called)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WorkerJobsCompleted.WithLabelValues(taskType)))
}

func TestCheckInput(t *testing.T) {
	tests := []struct {
		name      string
		activity  *registry.Activity
		variables string
		wantErr   bool
	}{
		{name: "no activity", variables: `not json`},
		{name: "valid", activity: textActivity, variables: `{"text":"fever"}`},
		{name: "missing field", activity: textActivity, variables: `{"queryId":"q1"}`, wantErr: true},
		{name: "empty text", activity: textActivity, variables: `{"text":""}`, wantErr: true},
		{name: "not an object", activity: textActivity, variables: `[1,2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkInput(tt.activity, tt.variables)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			stdErr, ok := apperrors.AsStandard(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeInputError, stdErr.Code)
		})
	}
}

// ==========================
// Client retry and error mapping
// ==========================

func testClient() *Client {
	return &Client{config: &ClientConfig{RetryConfig: &RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}}}
}

func TestExecuteWithRetry(t *testing.T) {
	t.Run("retries transient errors", func(t *testing.T) {
		attempts := 0
		result, err := testClient().ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			attempts++
			if attempts < 3 {
				return nil, stderrors.New("rpc error: code = Unavailable desc = connection refused")
			}
			return "ok", nil
		}, "publish")

		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, 3, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		_, err := testClient().ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			attempts++
			return nil, stderrors.New("deadline exceeded")
		}, "publish")

		require.Error(t, err)
		assert.Equal(t, 3, attempts)
		stdErr, ok := apperrors.AsStandard(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeWorkflowTimeout, stdErr.Code)
	})

	t.Run("does not retry rejections", func(t *testing.T) {
		attempts := 0
		_, err := testClient().ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			attempts++
			return nil, stderrors.New("process definition not found")
		}, "create process instance")

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		stdErr, _ := apperrors.AsStandard(err)
		assert.Equal(t, apperrors.ErrCodeWorkflowRejected, stdErr.Code)
		assert.False(t, stdErr.Retryable)
	})
}

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		msg  string
		want apperrors.ErrorCode
	}{
		{"connection reset by peer", apperrors.ErrCodeWorkflowEngine},
		{"context deadline exceeded", apperrors.ErrCodeWorkflowTimeout},
		{"resource already exists", apperrors.ErrCodeWorkflowRejected},
		{"permission denied", apperrors.ErrCodeWorkflowRejected},
		{"something odd", apperrors.ErrCodeWorkflowEngine},
	}

	c := testClient()
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := c.mapZeebeError(stderrors.New(tt.msg), "topology", 1)
			stdErr, ok := apperrors.AsStandard(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, stdErr.Code)
			assert.Equal(t, "topology", stdErr.Metadata["operation"])
		})
	}
}

func TestBackoff(t *testing.T) {
	c := &Client{config: &ClientConfig{RetryConfig: &RetryConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
	}}}

	assert.Equal(t, 100*time.Millisecond, c.backoff(0))
	assert.Equal(t, 400*time.Millisecond, c.backoff(2))
	assert.Equal(t, time.Second, c.backoff(4))
	assert.Equal(t, time.Second, c.backoff(70))
}

func TestExecuteWithRetry_RequestTimeout(t *testing.T) {
	c := testClient()
	c.config.RequestTimeout = 10 * time.Millisecond
	c.config.RetryConfig.MaxRetries = 0

	_, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, "topology")

	require.Error(t, err)
	stdErr, ok := apperrors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeWorkflowTimeout, stdErr.Code)
}

func TestExecuteWithRetry_Cancelled(t *testing.T) {
	c := testClient()
	c.config.RetryConfig.BaseDelay = time.Hour
	c.config.RetryConfig.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	_, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		attempts++
		cancel()
		return nil, stderrors.New("unavailable")
	}, "publish")

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}
