package recovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestPollDecodesCompletedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer session-token" {
			t.Errorf("expected bearer token, got %q", got)
		}
		w.Write([]byte(`{"ready":true,"transcript":"what is gravity?","response":"gravity is..."}`))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL}, zap.NewNop())
	result, err := client.Poll(context.Background(), "session-token")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !result.Ready {
		t.Error("expected ready result")
	}
	if result.Transcript != "what is gravity?" || result.Answer != "gravity is..." {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestPollReportsNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ready":false}`))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL}, zap.NewNop())
	result, err := client.Poll(context.Background(), "")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.Ready {
		t.Error("expected not-ready result")
	}
}

func TestPollSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL}, zap.NewNop())
	if _, err := client.Poll(context.Background(), ""); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestPollSurfacesMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL}, zap.NewNop())
	if _, err := client.Poll(context.Background(), ""); err == nil {
		t.Fatal("expected decode error")
	}
}
