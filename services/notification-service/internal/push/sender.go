// Package push delivers notifications to mobile devices. The default
// implementation goes through Expo's push service; the noop sender is for
// environments without real devices.
package push

import (
	"context"
	"errors"
	"fmt"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

type Sender interface {
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) error
	ProviderID() string
}

type ExpoSender struct {
	client *expo.PushClient
}

func NewExpoSender() *ExpoSender {
	return &ExpoSender{client: expo.NewPushClient(nil)}
}

func (s *ExpoSender) ProviderID() string { return "expo" }

func (s *ExpoSender) Send(_ context.Context, tokens []string, title, body string, data map[string]string) error {
	var valid []expo.ExponentPushToken
	for _, t := range tokens {
		pushToken, err := expo.NewExponentPushToken(t)
		if err != nil {
			continue
		}
		valid = append(valid, pushToken)
	}
	if len(valid) == 0 {
		return errors.New("no valid push tokens")
	}

	msg := &expo.PushMessage{
		To:       valid,
		Title:    title,
		Body:     body,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     data,
	}
	resp, err := s.client.Publish(msg)
	if err != nil {
		return fmt.Errorf("expo publish: %w", err)
	}
	if err := resp.ValidateResponse(); err != nil {
		return fmt.Errorf("expo response: %w", err)
	}
	return nil
}

type NoopSender struct{}

func NewNoopSender() *NoopSender { return &NoopSender{} }

func (*NoopSender) ProviderID() string { return "noop" }

func (*NoopSender) Send(context.Context, []string, string, string, map[string]string) error {
	return nil
}
