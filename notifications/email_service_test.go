package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestNewBrevoServiceRequiresSender(t *testing.T) {
	if s := NewBrevoService("", "billing@example.com", "Billing", zap.NewNop()); s != nil {
		t.Fatalf("expected nil service without api key")
	}
	var s *BrevoService
	s.Send("Ana", "ana@example.com", "subject", "<p>body</p>")
}

func TestDeliverPostsPayload(t *testing.T) {
	var got brevoPayload
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewBrevoService("key-123", "billing@example.com", "Billing", zap.NewNop())
	s.Endpoint = srv.URL

	if err := s.Deliver(context.Background(), "", "ana@example.com", "Coupon voided", "<p>x</p>"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if apiKey != "key-123" {
		t.Fatalf("api key header = %q", apiKey)
	}
	if got.Subject != "Coupon voided" || got.To[0]["email"] != "ana@example.com" || got.To[0]["name"] != "ana" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestDeliverReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"invalid_parameter"}`))
	}))
	defer srv.Close()

	s := NewBrevoService("key", "billing@example.com", "Billing", zap.NewNop())
	s.Endpoint = srv.URL
	if err := s.Deliver(context.Background(), "Ana", "ana@example.com", "s", "b"); err == nil {
		t.Fatalf("expected error on 400")
	}
	if err := s.Deliver(context.Background(), "Ana", "not-an-email", "s", "b"); err == nil {
		t.Fatalf("expected error for invalid recipient")
	}
}
