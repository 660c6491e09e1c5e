package provider

import (
	"errors"
	"strings"
	"time"
)

// SendRequest describes one outbound message send.
type SendRequest struct {
	ChannelID string
	To        string
	Body      string
}

func (r SendRequest) validate() error {
	if strings.TrimSpace(r.ChannelID) == "" {
		return errors.New("provider: channel id required")
	}
	if strings.TrimSpace(r.To) == "" {
		return errors.New("provider: destination number required")
	}
	if strings.TrimSpace(r.Body) == "" {
		return errors.New("provider: message body required")
	}
	return nil
}

// SendResponse mirrors the provider message resource.
type SendResponse struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	To        string    `json:"to"`
	Parts     int       `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}
