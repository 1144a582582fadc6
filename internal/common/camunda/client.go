// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medical-triage/internal/common/config"
	"medical-triage/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client is the Zeebe gateway connection shared by the job workers and the
// process starter.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	// RequestTimeout bounds each attempt of a command; zero means no bound.
	RequestTimeout time.Duration
	RetryConfig    *RetryConfig
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   10 * time.Second,
}

const defaultConnectionTimeout = 10 * time.Second

// NewClient connects to the broker named in the camunda config section.
func NewClient(cfg config.CamundaConfig) (*Client, error) {
	return NewClientWithConfig(&ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      defaultConnectionTimeout,
		RequestTimeout:         config.GetDuration(cfg.RequestTimeout),
	})
}

// NewClientWithConfig dials the gateway and fails unless the broker answers a
// topology request within ConnectionTimeout.
func NewClientWithConfig(cfg *ClientConfig) (*Client, error) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = defaultConnectionTimeout
	}

	zc, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("create zeebe client: %w", err)
	}

	c := &Client{client: zc, config: cfg}
	if err := c.HealthCheck(context.Background()); err != nil {
		zc.Close()
		return nil, fmt.Errorf("zeebe broker at %s unreachable: %w", cfg.GatewayAddress, err)
	}
	return c, nil
}

// GetClient exposes the raw client for opening job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ExecuteWithRetry runs command until it succeeds, fails with a non-transient
// error, or MaxRetries retries have been spent. The returned error always
// carries a WORKFLOW_* code.
func (c *Client) ExecuteWithRetry(
	ctx context.Context,
	command func(context.Context) (interface{}, error),
	operation string,
) (interface{}, error) {
	retries := c.config.RetryConfig.MaxRetries
	for attempt := 0; ; attempt++ {
		result, err := c.attempt(ctx, command)
		if err == nil {
			return result, nil
		}
		if attempt >= retries || !isRetryableZeebeError(err) {
			return nil, c.mapZeebeError(err, operation, attempt)
		}

		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return nil, errors.NewWorkflowTimeoutError(operation,
				fmt.Errorf("cancelled after %d attempts: %w", attempt+1, ctx.Err()))
		}
	}
}

func (c *Client) attempt(ctx context.Context, command func(context.Context) (interface{}, error)) (interface{}, error) {
	if c.config.RequestTimeout <= 0 {
		return command(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()
	return command(ctx)
}

// backoff doubles BaseDelay per attempt, capped at MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	rc := c.config.RetryConfig
	if attempt > 30 {
		return rc.MaxDelay
	}
	delay := rc.BaseDelay << attempt
	if delay <= 0 || delay > rc.MaxDelay {
		return rc.MaxDelay
	}
	return delay
}

var transientPhrases = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"deadline exceeded",
	"unavailable",
	"unreachable",
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

func (c *Client) mapZeebeError(err error, operation string, attempt int) error {
	lower := strings.ToLower(err.Error())

	prefix := fmt.Sprintf("zeebe %s", operation)
	if attempt > 0 {
		prefix = fmt.Sprintf("%s (%d attempts)", prefix, attempt+1)
	}
	wrapped := fmt.Errorf("%s: %w", prefix, err)

	switch {
	case containsAny(lower, "timeout", "deadline exceeded"):
		return errors.NewWorkflowTimeoutError(operation, wrapped)
	case containsAny(lower, "not found", "already exists", "permission denied", "unauthorized"):
		return errors.NewWorkflowRejectedError(operation, wrapped)
	default:
		return errors.NewWorkflowEngineError(operation, wrapped)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// StartTriage creates an instance of the latest version of the triage
// process and returns its key.
func (c *Client) StartTriage(ctx context.Context, processID string, variables interface{}) (int64, error) {
	result, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		cmd, err := c.client.NewCreateInstanceCommand().
			BPMNProcessId(processID).
			LatestVersion().
			VariablesFromObject(variables)
		if err != nil {
			return nil, err
		}
		return cmd.Send(ctx)
	}, "create process instance")
	if err != nil {
		return 0, err
	}
	return result.(*pb.CreateProcessInstanceResponse).GetProcessInstanceKey(), nil
}

// HealthCheck asks the broker for its topology.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}
