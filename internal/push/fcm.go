package push

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM publishes reminders to a per-user Firebase Cloud Messaging topic.
// Client apps subscribe their device tokens to TopicForUser(userID).
type FCM struct {
	client fcmSender
	logger *log.Logger
}

// NewFCM initialises a Firebase app from a service-account file and returns its messaging channel.
func NewFCM(ctx context.Context, credentialsPath string, logger *log.Logger) (*FCM, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase messaging client: %w", err)
	}

	logger.Println("push(fcm): firebase messaging client initialised")
	return &FCM{client: client, logger: logger}, nil
}

var topicUnsafe = regexp.MustCompile(`[^a-zA-Z0-9\-_.~%]`)

// TopicForUser maps a user id onto a valid FCM topic name.
func TopicForUser(userID string) string {
	return "reminders-" + topicUnsafe.ReplaceAllString(strings.TrimSpace(userID), "_")
}

func (c *FCM) Send(ctx context.Context, userID, templateID string, msg Message) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrNoRecipient
	}

	message := &messaging.Message{
		Topic: TopicForUser(userID),
		Notification: &messaging.Notification{
			Title: msg.Subject,
			Body:  msg.Body,
		},
		Data: map[string]string{
			"templateId": templateID,
			"subject":    msg.Subject,
			"body":       msg.Body,
			"time":       msg.Time,
		},
	}

	id, err := c.client.Send(ctx, message)
	if err != nil {
		return false, fmt.Errorf("fcm send: %w", err)
	}
	c.logger.Printf("push(fcm): message %s published to %s", id, message.Topic)
	return true, nil
}
