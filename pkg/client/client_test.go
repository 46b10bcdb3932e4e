package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func writeEnvelope(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": status < 300,
		"message": "",
		"data":    data,
	})
}

func TestDoRetriesOnceAfterRefresh(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeEnvelope(w, http.StatusUnauthorized, nil)
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]string{"value": "ok"})
	}))
	defer server.Close()

	refreshes := 0
	c := New(server.URL, AuthCallbacks{
		Refresh: func(ctx context.Context) (string, time.Time, error) {
			refreshes++
			return "fresh", time.Now().Add(time.Hour), nil
		},
	})
	defer c.Close()
	c.SetToken("stale", time.Now().Add(time.Hour))

	var out struct {
		Value string `json:"value"`
	}
	if err := c.Do(context.Background(), http.MethodGet, "/thing", nil, &out); err != nil {
		t.Fatalf("do: %v", err)
	}
	if out.Value != "ok" {
		t.Fatalf("data = %q, want ok", out.Value)
	}
	if refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", refreshes)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("server hits = %d, want 2 (original + one retry)", got)
	}
	if c.Token().Token != "fresh" {
		t.Fatal("refreshed token not installed")
	}
}

func TestDoFailedRefreshForcesLogout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, nil)
	}))
	defer server.Close()

	loggedOut := false
	c := New(server.URL, AuthCallbacks{
		Refresh: func(ctx context.Context) (string, time.Time, error) {
			return "", time.Time{}, errors.New("refresh cookie gone")
		},
		OnUnauthorized: func() { loggedOut = true },
	})
	defer c.Close()
	c.SetToken("stale", time.Now().Add(time.Hour))

	err := c.Do(context.Background(), http.MethodGet, "/thing", nil, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !loggedOut {
		t.Fatal("OnUnauthorized not invoked")
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	var refreshes int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeEnvelope(w, http.StatusUnauthorized, nil)
			return
		}
		writeEnvelope(w, http.StatusOK, nil)
	}))
	defer server.Close()

	release := make(chan struct{})
	c := New(server.URL, AuthCallbacks{
		Refresh: func(ctx context.Context) (string, time.Time, error) {
			atomic.AddInt32(&refreshes, 1)
			<-release // hold every caller on the same in-flight refresh
			return "fresh", time.Now().Add(time.Hour), nil
		},
	})
	defer c.Close()
	c.SetToken("stale", time.Now().Add(time.Hour))

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), http.MethodGet, "/thing", nil, nil)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&refreshes); got != 1 {
		t.Fatalf("refreshes = %d, want 1 shared refresh", got)
	}
}

func TestDoSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false, "message": "plan not found", "code": "PLAN_NOT_FOUND",
		})
	}))
	defer server.Close()

	c := New(server.URL, AuthCallbacks{})
	defer c.Close()
	c.SetToken("tok", time.Now().Add(time.Hour))

	err := c.Do(context.Background(), http.MethodGet, "/thing", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "PLAN_NOT_FOUND" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestSelectContextPersistsSelection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/context" {
			writeEnvelope(w, http.StatusNotFound, nil)
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"access_token":      "scoped",
			"access_expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	}))
	defer server.Close()

	c := New(server.URL, AuthCallbacks{})
	defer c.Close()
	c.SetToken("plain", time.Now().Add(time.Hour))

	if err := c.SelectContext(context.Background(), "company-1", nil); err != nil {
		t.Fatalf("select: %v", err)
	}
	if c.Token().Token != "scoped" {
		t.Fatal("scoped token not installed")
	}
	companyID, storeID, err := c.ActiveContext()
	if err != nil {
		t.Fatalf("active context: %v", err)
	}
	if companyID != "company-1" || storeID != "" {
		t.Fatalf("persisted selection = %q/%q", companyID, storeID)
	}
}

func TestFileStorageRoundTrip(t *testing.T) {
	path := t.TempDir() + "/context.json"
	s := NewFileStorage(path)

	companyID, storeID, err := s.LoadContext()
	if err != nil || companyID != "" || storeID != "" {
		t.Fatalf("missing file should read empty, got %q/%q err=%v", companyID, storeID, err)
	}

	if err := s.SaveContext("c-1", "s-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	companyID, storeID, err = s.LoadContext()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if companyID != "c-1" || storeID != "s-1" {
		t.Fatalf("round trip = %q/%q", companyID, storeID)
	}
}
