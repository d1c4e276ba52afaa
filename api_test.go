package chatsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: time.Second},
		norm:    NewNormalizer(nil, zerolog.Nop()),
		log:     zerolog.Nop(),
	}
}

func TestErrorClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("4xx carries the error envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeServerError(w, http.StatusBadRequest, "bad_cursor", "unparseable since value")
		}))
		defer srv.Close()

		_, err := testAPIClient(srv.URL).info(ctx)
		var se *ServerError
		if !errors.As(err, &se) {
			t.Fatalf("err = %v, want *ServerError", err)
		}
		if se.StatusCode != http.StatusBadRequest || se.Code != "bad_cursor" || se.Message != "unparseable since value" {
			t.Fatalf("parsed envelope = %+v", se)
		}
		if IsRetryable(err) {
			t.Fatal("4xx classified retryable")
		}
	})

	t.Run("5xx is retryable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeServerError(w, http.StatusServiceUnavailable, "overloaded", "try later")
		}))
		defer srv.Close()

		_, err := testAPIClient(srv.URL).info(ctx)
		if !IsRetryable(err) {
			t.Fatalf("503 not retryable: %v", err)
		}
	})

	t.Run("missing endpoints classify as not implemented", func(t *testing.T) {
		for _, status := range []int{http.StatusNotFound, http.StatusNotImplemented} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			err := testAPIClient(srv.URL).addReaction(ctx, "m1", "👍", "you")
			srv.Close()
			if !errors.Is(err, ErrNotImplemented) {
				t.Fatalf("status %d: err = %v, want ErrNotImplemented", status, err)
			}
		}
	})

	t.Run("transport failure is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // refuse every connection

		_, err := testAPIClient(srv.URL).info(ctx)
		var ne *NetworkError
		if !errors.As(err, &ne) {
			t.Fatalf("err = %v, want *NetworkError", err)
		}
		if !IsRetryable(err) {
			t.Fatal("network error not retryable")
		}
	})

	t.Run("timeout is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		a := testAPIClient(srv.URL)
		a.http = &http.Client{Timeout: 20 * time.Millisecond}
		_, err := a.info(ctx)
		var ne *NetworkError
		if !errors.As(err, &ne) {
			t.Fatalf("err = %v, want *NetworkError", err)
		}
	})
}

func TestSinceParam(t *testing.T) {
	var mu sync.Mutex
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if r.URL.Query().Has("since") {
			got = append(got, r.URL.Query().Get("since"))
		} else {
			got = append(got, "<absent>")
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	a := testAPIClient(srv.URL)
	ctx := context.Background()

	if _, err := a.messagesSince(ctx, time.Time{}); err != nil {
		t.Fatalf("zero cursor fetch: %v", err)
	}
	cursor := time.Date(2025, 6, 1, 10, 0, 0, 123456789, time.UTC)
	if _, err := a.messagesSince(ctx, cursor); err != nil {
		t.Fatalf("cursor fetch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("requests = %d, want 2", len(got))
	}
	if got[0] != "<absent>" {
		t.Fatalf("zero cursor sent since=%q", got[0])
	}
	if want := "2025-06-01T10:00:00.123456789Z"; got[1] != want {
		t.Fatalf("since = %q, want %q", got[1], want)
	}
}

func TestAuthHeader(t *testing.T) {
	var mu sync.Mutex
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessionId":"s1","apiVersion":1}`))
	}))
	defer srv.Close()

	a := testAPIClient(srv.URL)
	a.token = "tok-123"
	if _, err := a.info(context.Background()); err != nil {
		t.Fatalf("info: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if auth != "Bearer tok-123" {
		t.Fatalf("authorization = %q, want bearer token", auth)
	}
}

func TestSendMessageNormalizesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"srv-1","text":"hello","authorId":"you","createdAt":"2025-06-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	m, err := testAPIClient(srv.URL).sendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.ID != "srv-1" || m.Origin != OriginServer || m.Status != StatusSent {
		t.Fatalf("message = %+v", m)
	}
	if m.Reactions == nil || m.Tally == nil {
		t.Fatal("normalized message carries nil collections")
	}
}
