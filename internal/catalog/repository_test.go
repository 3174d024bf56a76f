package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shiftline/shiftline/internal/clock"
)

func newTestRepo(t *testing.T, srv *httptest.Server) *Repository {
	t.Helper()
	client := NewClient(srv.URL, "test-key", time.Second)
	return NewRepository(client, clock.NewMock(time.Now()))
}

func TestWorkerByPhone_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workers/by-phone/+15551234567" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(workerDTO{
			ID: "w1", DisplayName: "Ada", Phone: "+15551234567",
			ProviderIDs: []string{"p1"}, Active: true,
		})
	}))
	defer srv.Close()

	repo := newTestRepo(t, srv)
	w, err := repo.WorkerByPhone(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil || w.ID != "w1" {
		t.Fatalf("expected worker w1, got %+v", w)
	}
}

func TestWorkerByPhone_NotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	repo := newTestRepo(t, srv)
	w, err := repo.WorkerByPhone(context.Background(), "+15550000000")
	if err != nil {
		t.Fatalf("expected nil error for not-found, got %v", err)
	}
	if w != nil {
		t.Fatalf("expected nil worker, got %+v", w)
	}
}

func TestWorkerByPhone_CachesSecondLookup(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(workerDTO{ID: "w1", Phone: "+15551234567", Active: true})
	}))
	defer srv.Close()

	repo := newTestRepo(t, srv)
	ctx := context.Background()
	if _, err := repo.WorkerByPhone(ctx, "+15551234567"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.WorkerByPhone(ctx, "+15551234567"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected 1 upstream call (second served from cache), got %d", calls)
	}
}

func TestProviderByID_UpstreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	repo := newTestRepo(t, srv)
	_, err := repo.ProviderByID(context.Background(), "p1")
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestShiftsForProvider_Pagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(shiftPageDTO{
			Shifts: []shiftDTO{
				{ID: "s1", ProviderID: "p1", PatientDisplay: "Alice B.", ScheduledAt: "2026-08-01T10:00:00Z", Status: "Scheduled"},
			},
			HasMore: true,
		})
	}))
	defer srv.Close()

	repo := newTestRepo(t, srv)
	shifts, hasMore, err := repo.ShiftsForProvider(context.Background(), "p1", 0, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shifts) != 1 || shifts[0].ID != "s1" {
		t.Fatalf("unexpected shifts: %+v", shifts)
	}
	if !hasMore {
		t.Error("expected hasMore=true")
	}
}

func TestListActiveWorkers_FiltersInactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]workerDTO{
			{ID: "w1", Active: true},
			{ID: "w2", Active: false},
		})
	}))
	defer srv.Close()

	repo := newTestRepo(t, srv)
	workers, err := repo.ListActiveWorkers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(workers) != 1 || workers[0].ID != "w1" {
		t.Fatalf("expected only w1, got %+v", workers)
	}
}
