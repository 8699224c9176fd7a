// Package notify sends SMS through an ordered chain of declaratively
// configured HTTP gateways, failing over until one succeeds.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"agrisense/internal/models"
)

// ErrAllProvidersFailed is returned only when every configured
// provider failed for one message.
var ErrAllProvidersFailed = errors.New("all notification providers failed")

// ProviderSource lists active providers in descending priority order.
type ProviderSource interface {
	ActiveProviders(ctx context.Context) ([]models.ProviderConfig, error)
}

// AttemptLogger records every provider call, success or failure.
type AttemptLogger interface {
	InsertNotificationAttempt(ctx context.Context, a *models.NotificationAttempt) error
}

// SendResult identifies the provider that accepted the message.
type SendResult struct {
	Provider  string
	MessageID string
}

// Chain is the failover SMS sender.
type Chain struct {
	providers          ProviderSource
	attempts           AttemptLogger
	client             *resty.Client
	box                *SecretBox
	defaultCountryCode string
	logMessageContent  bool
	log                *zap.Logger
}

// ChainOptions configures the chain.
type ChainOptions struct {
	DefaultCountryCode string
	LogMessageContent  bool
	RequestTimeout     time.Duration
	Box                *SecretBox
}

// NewChain creates the provider chain.
func NewChain(providers ProviderSource, attempts AttemptLogger, opts ChainOptions, log *zap.Logger) *Chain {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Chain{
		providers:          providers,
		attempts:           attempts,
		client:             resty.New().SetTimeout(timeout),
		box:                opts.Box,
		defaultCountryCode: opts.DefaultCountryCode,
		logMessageContent:  opts.LogMessageContent,
		log:                log,
	}
}

// Send tries each active provider in priority order and returns the
// first success. Timeouts and transport errors count as ordinary
// provider failures and feed failover.
func (c *Chain) Send(ctx context.Context, to, message, senderID string) (*SendResult, error) {
	providers, err := c.providers.ActiveProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrAllProvidersFailed)
	}

	recipient := NormalizePhone(to, c.defaultCountryCode)

	for i := range providers {
		p := &providers[i]
		result, attemptErr := c.attempt(ctx, p, recipient, message, senderID)
		c.logAttempt(ctx, p, recipient, message, attemptErr)
		if attemptErr == nil {
			return result, nil
		}
		c.log.Warn("notification provider failed, trying next",
			zap.String("provider", p.Name),
			zap.Error(attemptErr))
	}
	return nil, ErrAllProvidersFailed
}

func (c *Chain) attempt(ctx context.Context, p *models.ProviderConfig, to, message, senderID string) (*SendResult, error) {
	auth := &authConfig{}
	if len(p.AuthConfig) > 0 {
		if c.box == nil {
			return nil, errors.New("provider has credentials but no encryption key is configured")
		}
		plain, err := c.box.Open(p.AuthConfig)
		if err != nil {
			return nil, fmt.Errorf("decrypt credentials: %w", err)
		}
		if err := json.Unmarshal(plain, auth); err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
	}

	req := c.client.R().SetContext(ctx)
	if err := buildRequest(req, p, auth, to, message, senderID); err != nil {
		return nil, err
	}

	resp, err := req.Execute(methodOrDefault(p.Method), p.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	body := resp.Body()
	if resp.IsSuccess() && c.matchesSuccess(p, body) {
		return &SendResult{Provider: p.Name, MessageID: extractMessageID(p, body)}, nil
	}
	return nil, fmt.Errorf("provider rejected: %s", c.extractError(p, resp.StatusCode(), body))
}

// matchesSuccess applies the optional success regex on top of the
// HTTP 2xx check. A regex that does not compile is ignored with a
// warning rather than failing deliveries.
func (c *Chain) matchesSuccess(p *models.ProviderConfig, body []byte) bool {
	if p.SuccessPattern == "" {
		return true
	}
	re, err := regexp.Compile(p.SuccessPattern)
	if err != nil {
		c.log.Warn("invalid success pattern on provider",
			zap.String("provider", p.Name), zap.Error(err))
		return true
	}
	return re.Match(body)
}

func (c *Chain) extractError(p *models.ProviderConfig, status int, body []byte) string {
	if p.ErrorPattern != "" {
		if re, err := regexp.Compile(p.ErrorPattern); err == nil {
			if m := re.FindSubmatch(body); m != nil {
				if len(m) > 1 {
					return string(m[1])
				}
				return string(m[0])
			}
		} else {
			c.log.Warn("invalid error pattern on provider",
				zap.String("provider", p.Name), zap.Error(err))
		}
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err == nil {
		if msg, ok := raw["error"].(string); ok && msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

// logAttempt writes the audit row. Identifiers are always recorded;
// message content only with the explicit opt-in.
func (c *Chain) logAttempt(ctx context.Context, p *models.ProviderConfig, recipient, message string, attemptErr error) {
	a := &models.NotificationAttempt{
		ProviderID: p.ID,
		Provider:   p.Name,
		Recipient:  recipient,
		Status:     "sent",
	}
	if c.logMessageContent {
		a.Body = message
	}
	if attemptErr != nil {
		a.Status = "failed"
		a.Error = attemptErr.Error()
	}
	if err := c.attempts.InsertNotificationAttempt(ctx, a); err != nil {
		c.log.Error("writing notification attempt failed",
			zap.String("provider", p.Name), zap.Error(err))
	}
}
