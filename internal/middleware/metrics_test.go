package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- モック定義 ---

type mockMetricsRecorder struct {
	statuses  []int
	durations []time.Duration
}

func (m *mockMetricsRecorder) RecordHTTPStatus(statusCode int) {
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockMetricsRecorder) RecordRequestDuration(d time.Duration) {
	m.durations = append(m.durations, d)
}

// --- テスト ---

// TestMetricsMiddleware_RecordsStatusAndDuration はレスポンスのステータスコードと
// 処理時間が記録されることを検証する。
func TestMetricsMiddleware_RecordsStatusAndDuration(t *testing.T) {
	recorder := &mockMetricsRecorder{}
	mw := NewMetricsMiddleware(recorder)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/entries", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if len(recorder.statuses) != 1 {
		t.Fatalf("recorded statuses = %d, want 1", len(recorder.statuses))
	}
	if recorder.statuses[0] != http.StatusCreated {
		t.Errorf("status = %d, want %d", recorder.statuses[0], http.StatusCreated)
	}
	if len(recorder.durations) != 1 {
		t.Fatalf("recorded durations = %d, want 1", len(recorder.durations))
	}
	if recorder.durations[0] < 0 {
		t.Errorf("duration = %v, should be >= 0", recorder.durations[0])
	}
}

// TestMetricsMiddleware_DefaultStatus200 はWriteHeaderを呼ばないハンドラーで
// 200が記録されることを検証する。
func TestMetricsMiddleware_DefaultStatus200(t *testing.T) {
	recorder := &mockMetricsRecorder{}
	mw := NewMetricsMiddleware(recorder)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/entries", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if len(recorder.statuses) != 1 || recorder.statuses[0] != http.StatusOK {
		t.Errorf("statuses = %v, want [200]", recorder.statuses)
	}
}

// TestMetricsMiddleware_RecordsErrorStatuses はエラーレスポンスも記録されることを検証する。
func TestMetricsMiddleware_RecordsErrorStatuses(t *testing.T) {
	recorder := &mockMetricsRecorder{}
	mw := NewMetricsMiddleware(recorder)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/entries/2025-01-01", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}

	if len(recorder.statuses) != 3 {
		t.Fatalf("recorded statuses = %d, want 3", len(recorder.statuses))
	}
	for i, status := range recorder.statuses {
		if status != http.StatusNotFound {
			t.Errorf("status[%d] = %d, want %d", i, status, http.StatusNotFound)
		}
	}
}
