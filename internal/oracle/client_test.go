package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetMatchParsesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/1042" {
			t.Errorf("path = %s, want /matches/1042", r.URL.Path)
		}
		if r.Header.Get("X-Auth-Token") != "secret" {
			t.Errorf("missing auth token header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1042","status":"FINISHED","score":{"home":2,"away":1}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", 100)
	match, err := client.GetMatch(context.Background(), "1042")
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}

	if match.Status != MatchStatusFinished {
		t.Errorf("status = %s, want FINISHED", match.Status)
	}
	if !match.Score.Determinate() {
		t.Fatal("expected determinate score")
	}
	if *match.Score.Home != 2 || *match.Score.Away != 1 {
		t.Errorf("score = %d:%d, want 2:1", *match.Score.Home, *match.Score.Away)
	}
}

func TestGetMatchIndeterminateScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"7","status":"FINISHED","score":{"home":1,"away":null}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 100)
	match, err := client.GetMatch(context.Background(), "7")
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	if match.Score.Determinate() {
		t.Error("half-reported score must be indeterminate")
	}
}

func TestGetMatchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 100)
	if _, err := client.GetMatch(context.Background(), "missing"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
