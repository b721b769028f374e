package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProbes(t *testing.T) {
	started := make(chan struct{})
	close(started)
	pending := make(chan struct{})

	tests := []struct {
		name           string
		endpoint       string
		deps           Dependencies
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Healthz Always OK",
			endpoint:       "/healthz",
			deps:           Dependencies{Store: &mockPinger{err: errors.New("db down")}},
			expectedStatus: http.StatusOK,
			expectedBody:   "healthy",
		},
		{
			name:     "Readyz Success",
			endpoint: "/readyz",
			deps: Dependencies{
				Store:   &mockPinger{},
				Runtime: &mockPinger{},
				Started: started,
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "Readyz Database Fail",
			endpoint:       "/readyz",
			deps:           Dependencies{Store: &mockPinger{err: errors.New("db down")}},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "Database unavailable",
		},
		{
			name:     "Readyz Runtime Available",
			endpoint: "/readyz",
			deps: Dependencies{
				Store:   &mockPinger{},
				Runtime: &mockPinger{},
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"runtime":"available"`,
		},
		{
			name:     "Readyz Runtime Down Stays Ready",
			endpoint: "/readyz",
			deps: Dependencies{
				Store:   &mockPinger{},
				Runtime: &mockPinger{err: errors.New("daemon gone")},
				Started: started,
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"runtime":"unavailable"`,
		},
		{
			name:     "Readyz Engine Starting",
			endpoint: "/readyz",
			deps: Dependencies{
				Store:   &mockPinger{},
				Started: pending,
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "Engine starting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.deps)

			req := httptest.NewRequest(http.MethodGet, tt.endpoint, nil)
			rr := httptest.NewRecorder()

			if tt.endpoint == "/healthz" {
				h.Healthz(rr, req)
			} else {
				h.Readyz(rr, req)
			}

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedBody) {
				t.Errorf("handler returned unexpected body: got %v want substring %v", rr.Body.String(), tt.expectedBody)
			}
		})
	}
}
