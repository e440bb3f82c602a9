package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassify_Relevant(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/classify" {
			t.Errorf("path = %q, want /v1/classify", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer k123" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]string{"assessment": "Relevant"})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, APIKey: "k123"})
	a, err := c.Classify(context.Background(), Request{
		URL:          "https://example.com/go-concurrency",
		Title:        "Go Concurrency Patterns",
		SessionFocus: "learning Go",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if a != Relevant {
		t.Errorf("assessment = %q, want Relevant", a)
	}
	if got.SessionFocus != "learning Go" {
		t.Errorf("session_focus = %q", got.SessionFocus)
	}
	if got.URL != "https://example.com/go-concurrency" {
		t.Errorf("url = %q", got.URL)
	}
}

func TestClassify_QuotaExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.Classify(context.Background(), Request{URL: "https://example.com"})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("err = %v, want ErrQuotaExhausted", err)
	}
}

func TestClassify_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.Classify(context.Background(), Request{URL: "https://example.com"})
	if err == nil {
		t.Fatal("want error on HTTP 500")
	}
	if errors.Is(err, ErrQuotaExhausted) {
		t.Fatal("HTTP 500 must not map to quota exhaustion")
	}
}

func TestClassify_UnknownAssessment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"assessment": "Maybe"})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	if _, err := c.Classify(context.Background(), Request{URL: "https://example.com"}); err == nil {
		t.Fatal("want error on unknown assessment value")
	}
}
