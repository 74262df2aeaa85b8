package notify

import (
	"context"
	"fmt"

	"cafe_backend/pkg/utils"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// PushSender delivers a device notification.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

type FCMSender struct {
	client *messaging.Client
}

// NewPushSender builds an FCM sender from a service-account file, or a
// log-only sender when no file is configured.
func NewPushSender(ctx context.Context, credentialsFile string) (PushSender, error) {
	if credentialsFile == "" {
		utils.LogWarn("Firebase credentials not configured, push notifications will only be logged")
		return logPushSender{}, nil
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	_, err := s.client.Send(ctx, &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("sending push notification: %w", err)
	}
	return nil
}

type logPushSender struct{}

func (logPushSender) Send(_ context.Context, _ string, title, body string, data map[string]string) error {
	utils.LogInfo("Push notification (mock)", map[string]interface{}{"title": title, "body": body, "data": data})
	return nil
}
