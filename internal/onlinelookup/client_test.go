package onlinelookup_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"beatline/internal/beatmap"
	"beatline/internal/onlinelookup"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *onlinelookup.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := onlinelookup.New("secret", server.URL,
		onlinelookup.WithRetryMax(0),
		onlinelookup.WithRateLimit(100),
		onlinelookup.WithUserAgent("beatline-test"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestLookupBeatmapParsesResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_beatmaps" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("k") != "secret" || q.Get("h") != "abc123" || q.Get("limit") != "1" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") != "beatline-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`[{"beatmap_id":"75","beatmapset_id":"1","approved":"1","title":"DISCO PRINCE"}]`))
	})

	res, err := client.LookupBeatmap(context.Background(), " ABC123 ")
	if err != nil {
		t.Fatalf("LookupBeatmap: %v", err)
	}
	if res.BeatmapID != 75 || res.SetID != 1 || res.Status != beatmap.StatusRanked {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLookupBeatmapEmptyIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.LookupBeatmap(context.Background(), "missing")
	if !errors.Is(err, onlinelookup.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupBeatmapRejectsErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "denied", http.StatusUnauthorized)
	})

	_, err := client.LookupBeatmap(context.Background(), "abc")
	if err == nil || errors.Is(err, onlinelookup.ErrNotFound) {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := onlinelookup.New("", "https://example.test"); err == nil {
		t.Fatal("expected error for empty api key")
	}
	if _, err := onlinelookup.New("key", " "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
