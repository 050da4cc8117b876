// Package notify alerts a human (usually the local extension officer) when
// a triage is assessed as HIGH.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// Alert is what gets sent for one escalated request.
type Alert struct {
	RequestID string
	Crop      string
	PlantPart string
	Level     string
	Summary   string
}

// Body renders the alert as a short SMS.
func (a Alert) Body() string {
	summary := strings.Join(strings.Fields(a.Summary), " ")
	if utf8.RuneCountInString(summary) > 240 {
		summary = string([]rune(summary)[:240]) + "..."
	}
	return fmt.Sprintf("[%s] %s %s needs an on-site check (ref %s). %s",
		a.Level, a.Crop, a.PlantPart, shortRef(a.RequestID), summary)
}

func shortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert Alert) (string, error)
}

// Noop is used when SMS is not configured.
type Noop struct{}

func (Noop) Name() string                                   { return "noop" }
func (Noop) Notify(context.Context, Alert) (string, error) { return "", nil }

type Config struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	To         string `mapstructure:"to"`
}

// Enabled reports whether every field needed to send an SMS is set.
func (c Config) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != "" && c.To != ""
}

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// SMS sends alerts through the Twilio Messages API.
type SMS struct {
	cfg    Config
	client messageCreator
}

func NewSMS(cfg Config) *SMS {
	return &SMS{cfg: cfg}
}

// New returns an SMS notifier when cfg is complete, Noop otherwise.
func New(cfg Config) Notifier {
	if !cfg.Enabled() {
		return Noop{}
	}
	return NewSMS(cfg)
}

func (s *SMS) Name() string { return "twilio_sms" }

func (s *SMS) Notify(ctx context.Context, alert Alert) (string, error) {
	_ = ctx
	if !s.cfg.Enabled() {
		return "", errorsx.Wrap(errors.New("missing twilio sms config"), errorsx.ReasonNotifySend)
	}
	client := s.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: s.cfg.AccountSID,
			Password: s.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateMessageParams{}
	params.SetTo(s.cfg.To)
	params.SetFrom(s.cfg.From)
	params.SetBody(alert.Body())
	resp, err := client.CreateMessage(params)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("twilio create message: %w", err), errorsx.ReasonNotifySend)
	}
	if resp == nil || resp.Sid == nil {
		return "", errorsx.Wrap(errors.New("missing message sid"), errorsx.ReasonNotifySend)
	}
	return *resp.Sid, nil
}
