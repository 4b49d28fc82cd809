// Package sms delivers text messages through Africa's Talking, or logs them
// when no API key is configured.
package sms

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/config"
	"github.com/sells-group/sokoprice/internal/metrics"
	"github.com/sells-group/sokoprice/internal/resilience"
	"github.com/sells-group/sokoprice/pkg/africastalking"
)

// Result is the outcome of one send. Callers log failures and carry on.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Sender dispatches a single SMS.
type Sender interface {
	Send(ctx context.Context, to, message string) Result
}

// New returns an Africa's Talking sender, or a LogSender when cfg has no
// API key.
func New(cfg config.SMSConfig) Sender {
	if cfg.APIKey == "" {
		zap.L().Info("sms: no api key configured, using simulated delivery")
		return NewLogSender()
	}
	opts := []africastalking.Option{africastalking.WithRateLimit(cfg.RatePerSec)}
	if cfg.BaseURL != "" {
		opts = append(opts, africastalking.WithBaseURL(cfg.BaseURL))
	}
	client := africastalking.NewClient(cfg.Username, cfg.APIKey, opts...)
	retry, breaker := resilience.FromSMSConfig(cfg)
	return NewATSender(client, cfg.SenderID, retry, breaker)
}

// ATSender sends through Africa's Talking with retries behind a circuit
// breaker.
type ATSender struct {
	client  africastalking.Client
	from    string
	retry   resilience.Policy
	breaker *resilience.CircuitBreaker
}

// NewATSender wires a client with the given retry and breaker policies.
func NewATSender(client africastalking.Client, from string, retry resilience.Policy, breaker resilience.CircuitBreakerConfig) *ATSender {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.LogRetries("africastalking.send_sms")
	}
	breaker.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("sms: circuit breaker state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &ATSender{
		client:  client,
		from:    from,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(breaker),
	}
}

// Send delivers message to one number.
func (s *ATSender) Send(ctx context.Context, to, message string) Result {
	log := zap.L().With(zap.String("component", "sms"), zap.String("to", to))

	resp, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*africastalking.SendResponse, error) {
		return resilience.Retry(ctx, s.retry, func(ctx context.Context) (*africastalking.SendResponse, error) {
			return s.client.SendSMS(ctx, africastalking.SendRequest{
				To:      []string{to},
				Message: message,
				From:    s.from,
			})
		})
	})
	if err != nil {
		log.Error("sms: send failed", zap.String("class", resilience.Classify(err).String()), zap.Error(err))
		metrics.SMSSent.WithLabelValues("failed").Inc()
		return Result{Error: err.Error()}
	}

	recipients := resp.SMSMessageData.Recipients
	if len(recipients) == 0 {
		msg := resp.SMSMessageData.Message
		if msg == "" {
			msg = "no recipients accepted"
		}
		log.Error("sms: rejected", zap.String("reason", msg))
		metrics.SMSSent.WithLabelValues("failed").Inc()
		return Result{Error: msg}
	}

	r := recipients[0]
	if !r.Accepted() {
		log.Error("sms: rejected", zap.String("status", r.Status), zap.Int("status_code", r.StatusCode))
		metrics.SMSSent.WithLabelValues("failed").Inc()
		return Result{MessageID: r.MessageID, Error: fmt.Sprintf("%s (%d)", r.Status, r.StatusCode)}
	}

	log.Debug("sms: sent", zap.String("message_id", r.MessageID))
	metrics.SMSSent.WithLabelValues("sent").Inc()
	return Result{Success: true, MessageID: r.MessageID}
}

// LogSender logs messages instead of sending them.
type LogSender struct{}

// NewLogSender creates a simulated sender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send logs the message and reports success.
func (LogSender) Send(_ context.Context, to, message string) Result {
	id := "simulated-" + uuid.NewString()
	zap.L().Info("sms: simulated send",
		zap.String("to", to),
		zap.String("message", message),
		zap.String("message_id", id),
	)
	metrics.SMSSent.WithLabelValues("simulated").Inc()
	return Result{Success: true, MessageID: id}
}
