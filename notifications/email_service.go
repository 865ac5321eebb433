package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

type BrevoService struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	Endpoint    string

	client *http.Client
	log    *zap.Logger
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewBrevoService returns nil when the sender is not configured. A nil
// service accepts and drops every message.
func NewBrevoService(apiKey, senderEmail, senderName string, log *zap.Logger) *BrevoService {
	if apiKey == "" || senderEmail == "" || senderName == "" {
		log.Warn("email service not configured, notifications disabled")
		return nil
	}
	log.Info("email service initialized", zap.String("sender", senderEmail))
	return &BrevoService{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		Endpoint:    brevoEndpoint,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

// Send delivers in the background so request handlers never wait on Brevo.
func (s *BrevoService) Send(toName, toEmail, subject, htmlContent string) {
	if s == nil {
		return
	}
	go func() {
		if err := s.Deliver(context.Background(), toName, toEmail, subject, htmlContent); err != nil {
			s.log.Error("failed to send email", zap.String("to", toEmail), zap.String("subject", subject), zap.Error(err))
			return
		}
		s.log.Info("email sent", zap.String("to", toEmail), zap.String("subject", subject))
	}()
}

func (s *BrevoService) Deliver(ctx context.Context, toName, toEmail, subject, htmlContent string) error {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return fmt.Errorf("invalid recipient email: %q", toEmail)
	}
	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	body, err := json.Marshal(brevoPayload{
		Sender:      map[string]string{"name": s.SenderName, "email": s.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("brevo returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
