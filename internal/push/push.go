// Package push delivers reminder notifications through third-party messaging channels.
package push

import (
	"context"
	"errors"
	"log"
)

// ErrNoRecipient is returned when a user cannot be mapped to a channel address.
var ErrNoRecipient = errors.New("push: recipient missing or invalid")

// Message is the formatted payload of one reminder notification.
// Subject and Body are already cut to the channel's field limits.
type Message struct {
	Subject string
	Body    string
	Time    string
}

// Channel sends a notification to a user using a channel-side template.
// A false result with a nil error means the channel declined the message.
type Channel interface {
	Send(ctx context.Context, userID, templateID string, msg Message) (bool, error)
}

// LogChannel only logs what it would send. It is the development default.
type LogChannel struct {
	logger *log.Logger
}

// NewLogChannel returns a channel that always reports success.
func NewLogChannel(logger *log.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Send(_ context.Context, userID, templateID string, msg Message) (bool, error) {
	c.logger.Printf("push(log): to=%s template=%s subject=%q body=%q time=%s", userID, templateID, msg.Subject, msg.Body, msg.Time)
	return true, nil
}
