// Package push wraps Firebase Cloud Messaging multicast sends.
package push

import (
	"context"
	"errors"
	"strings"

	"firebase.google.com/go/v4/messaging"
)

// fcmMulticastLimit is the maximum number of tokens FCM accepts per call.
const fcmMulticastLimit = 500

// Notification is a title/body pair plus structured data delivered to devices.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Report summarises a multicast send. InvalidTokens lists tokens the service
// rejected as unknown or malformed; callers prune them from the owning entity.
type Report struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Client is the subset of the FCM messaging client the sender depends on.
type Client interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Sender delivers push notifications to batches of device tokens.
type Sender struct {
	client Client
}

// NewSender constructs a Sender backed by the provided messaging client.
func NewSender(client Client) (*Sender, error) {
	if client == nil {
		return nil, errors.New("push: messaging client is required")
	}
	return &Sender{client: client}, nil
}

// Send delivers the notification to every token, batching by the FCM multicast
// limit, and reports per-token outcomes.
func (s *Sender) Send(ctx context.Context, tokens []string, n Notification) (Report, error) {
	if s == nil || s.client == nil {
		return Report{}, errors.New("push: sender not initialised")
	}

	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return Report{}, nil
	}

	var report Report
	for start := 0; start < len(cleaned); start += fcmMulticastLimit {
		end := start + fcmMulticastLimit
		if end > len(cleaned) {
			end = len(cleaned)
		}
		batch := cleaned[start:end]

		resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: n.Title,
				Body:  n.Body,
			},
			Data: n.Data,
		})
		if err != nil {
			return report, err
		}

		report.SuccessCount += resp.SuccessCount
		report.FailureCount += resp.FailureCount
		for idx, sendResp := range resp.Responses {
			if sendResp.Success || sendResp.Error == nil {
				continue
			}
			if messaging.IsUnregistered(sendResp.Error) || messaging.IsInvalidArgument(sendResp.Error) {
				report.InvalidTokens = append(report.InvalidTokens, batch[idx])
			}
		}
	}
	return report, nil
}
