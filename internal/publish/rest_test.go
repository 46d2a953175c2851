// internal/publish/rest_test.go
package publish

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tamzrod/bms-telemetry/internal/reading"
)

type fakeSource struct {
	id   string
	snap *reading.Snapshot
}

func (f *fakeSource) LinkID() string { return f.id }

func (f *fakeSource) Latest() (reading.Snapshot, bool) {
	if f.snap == nil {
		return reading.Snapshot{}, false
	}
	return f.snap.Clone(), true
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestREST_Healthz(t *testing.T) {
	s := NewREST(":0", nil, nil)
	rec := get(t, s.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestREST_SnapshotBeforeFirstCycle(t *testing.T) {
	s := NewREST(":0", []Source{&fakeSource{id: "bank-a"}}, nil)
	rec := get(t, s.Handler(), "/api/snapshot")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestREST_SnapshotServesLatest(t *testing.T) {
	snap := reading.Aggregate("bank-a", []reading.Pack{{
		Address:  1,
		VoltageV: 53.2,
		RemainAh: 50,
		FullAh:   100,
	}}, time.Now())
	snap.LinkUp = true

	s := NewREST(":0", []Source{
		&fakeSource{id: "bank-a", snap: &snap},
		&fakeSource{id: "bank-b"},
	}, nil)

	rec := get(t, s.Handler(), "/api/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	var body struct {
		Links map[string]*reading.Snapshot `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := body.Links["bank-a"]
	if got == nil || !got.LinkUp || got.SOCPercent != 50 {
		t.Fatalf("bank-a snapshot = %+v", got)
	}
	if body.Links["bank-b"] != nil {
		t.Fatal("bank-b should be null before its first cycle")
	}
}
