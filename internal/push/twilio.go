package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the slice of the Twilio REST API the channel uses.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Twilio sends reminders as WhatsApp messages. The user id is the recipient's phone number.
type Twilio struct {
	api          messageCreator
	fromWhatsApp string
	logger       *log.Logger
}

// NewTwilio creates a Twilio channel bound to the configured WhatsApp sender number.
func NewTwilio(accountSID, authToken, fromWhatsApp string, logger *log.Logger) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return &Twilio{
		api:          client.Api,
		fromWhatsApp: fromWhatsApp,
		logger:       logger,
	}
}

// Send uses the template as a Twilio Content SID when it looks like one,
// otherwise it falls back to a plain text body.
func (c *Twilio) Send(_ context.Context, userID, templateID string, msg Message) (bool, error) {
	if c.api == nil {
		return false, fmt.Errorf("twilio client not initialised")
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return false, fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := normalizeWhatsAppAddress(userID)
	if recipient == "" {
		return false, ErrNoRecipient
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	if isContentSID(templateID) {
		variables, err := contentVariables(msg)
		if err != nil {
			return false, err
		}
		params.SetContentSid(templateID)
		params.SetContentVariables(variables)
	} else {
		params.SetBody(plainBody(msg))
	}

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return false, fmt.Errorf("twilio send message error: %w", err)
	}

	if resp != nil && resp.Sid != nil {
		c.logger.Printf("push(twilio): message sent to %s, SID: %s", recipient, *resp.Sid)
	}
	return true, nil
}

func isContentSID(templateID string) bool {
	return strings.HasPrefix(templateID, "HX") && len(templateID) == 34
}

func contentVariables(msg Message) (string, error) {
	raw, err := json.Marshal(map[string]string{
		"1": msg.Subject,
		"2": msg.Body,
		"3": msg.Time,
	})
	if err != nil {
		return "", fmt.Errorf("twilio content variables: %w", err)
	}
	return string(raw), nil
}

func plainBody(msg Message) string {
	return fmt.Sprintf("Reminder: %s\n%s\n%s", msg.Subject, msg.Body, msg.Time)
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}
