package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"formplane/internal/coordinator"
	"formplane/internal/reconciler"
	"formplane/internal/store"
	"formplane/pkg/api"
)

func TestCreateEntity(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockSetup      func(*mockService)
		expectedStatus int
		expectedInBody string
	}{
		{
			name:           "Accepted",
			body:           `{"name": "alice", "email": "a@x.io", "age": 30}`,
			mockSetup:      func(m *mockService) { m.createResp = pendingEntity() },
			expectedStatus: http.StatusAccepted,
			expectedInBody: `"state":"pending"`,
		},
		{
			name:           "Invalid Request Body",
			body:           `{invalid}`,
			mockSetup:      func(m *mockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "Invalid request body",
		},
		{
			name: "Validation Error",
			body: `{"name": "", "email": "a@x.io"}`,
			mockSetup: func(m *mockService) {
				m.createErr = &coordinator.ValidationError{Field: "name", Message: "is required"}
			},
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "invalid name: is required",
		},
		{
			name:           "Duplicate Email",
			body:           `{"name": "bob", "email": "a@x.io"}`,
			mockSetup:      func(m *mockService) { m.createErr = coordinator.ErrDuplicateEmail },
			expectedStatus: http.StatusConflict,
			expectedInBody: "email is already registered",
		},
		{
			name:           "Store Error",
			body:           `{"name": "alice", "email": "a@x.io"}`,
			mockSetup:      func(m *mockService) { m.createErr = errors.New("db down") },
			expectedStatus: http.StatusInternalServerError,
			expectedInBody: "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			tt.mockSetup(svc)
			h := New(Dependencies{Service: svc, Store: &mockPinger{}})

			req := httptest.NewRequest(http.MethodPost, "/entities", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			routes(h).ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("handler returned unexpected body: got %v want substring %v", rr.Body.String(), tt.expectedInBody)
			}
		})
	}
}

func TestCreateEntity_PassesAttributes(t *testing.T) {
	svc := &mockService{createResp: pendingEntity()}
	h := New(Dependencies{Service: svc, Store: &mockPinger{}})

	body := `{"name": "alice", "email": "a@x.io", "age": 30, "gender": "f", "address": "Main St"}`
	req := httptest.NewRequest(http.MethodPost, "/entities", strings.NewReader(body))
	rr := httptest.NewRecorder()
	routes(h).ServeHTTP(rr, req)

	want := store.Attributes{Name: "alice", Email: "a@x.io", Age: 30, Gender: "f", Address: "Main St"}
	if svc.capturedAttrs != want {
		t.Errorf("attributes = %+v, want %+v", svc.capturedAttrs, want)
	}

	var resp api.EntityResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != testID || resp.Revision != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.ContainerRef != nil {
		t.Errorf("pending entity should not carry a container ref")
	}
}

func TestCreateEntity_BodyTooLarge(t *testing.T) {
	svc := &mockService{createResp: pendingEntity()}
	h := New(Dependencies{Service: svc, Store: &mockPinger{}})

	body := `{"name": "` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/entities", strings.NewReader(body))
	rr := httptest.NewRecorder()
	routes(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListEntities(t *testing.T) {
	t.Run("Lists", func(t *testing.T) {
		svc := &mockService{listResp: []store.Entity{*readyEntity(), *pendingEntity()}}
		h := New(Dependencies{Service: svc, Store: &mockPinger{}})

		req := httptest.NewRequest(http.MethodGet, "/entities", nil)
		rr := httptest.NewRecorder()
		routes(h).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var resp api.ListEntitiesResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Entities) != 2 {
			t.Fatalf("got %d entities, want 2", len(resp.Entities))
		}
		if resp.Entities[0].ContainerRef == nil || *resp.Entities[0].ContainerRef != "c0ffee" {
			t.Errorf("ready entity lost its container ref: %+v", resp.Entities[0])
		}
	})

	t.Run("Empty Is Not Null", func(t *testing.T) {
		h := New(Dependencies{Service: &mockService{}, Store: &mockPinger{}})

		req := httptest.NewRequest(http.MethodGet, "/entities", nil)
		rr := httptest.NewRecorder()
		routes(h).ServeHTTP(rr, req)

		if !strings.Contains(rr.Body.String(), `"entities":[]`) {
			t.Errorf("body = %s, want empty array", rr.Body.String())
		}
	})
}

func TestGetEntity(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		mockSetup      func(*mockService)
		expectedStatus int
	}{
		{
			name:           "Found",
			path:           "/entities/" + testID,
			mockSetup:      func(m *mockService) { m.getResp = readyEntity() },
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Not Found",
			path:           "/entities/" + testID,
			mockSetup:      func(m *mockService) { m.getErr = store.ErrNotFound },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Malformed ID",
			path:           "/entities/not-a-uuid",
			mockSetup:      func(m *mockService) {},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			tt.mockSetup(svc)
			h := New(Dependencies{Service: svc, Store: &mockPinger{}})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rr := httptest.NewRecorder()
			routes(h).ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestUpdateEntity(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockSetup      func(*mockService)
		expectedStatus int
		expectedInBody string
	}{
		{
			name: "Accepted",
			body: `{"name": "alicia", "email": "a@x.io", "expected_revision": 3}`,
			mockSetup: func(m *mockService) {
				e := readyEntity()
				e.State = store.StateUpdating
				e.Revision = 4
				m.updateResp = e
			},
			expectedStatus: http.StatusAccepted,
			expectedInBody: `"state":"updating"`,
		},
		{
			name:           "Missing Revision",
			body:           `{"name": "alicia"}`,
			mockSetup:      func(m *mockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "expected_revision is required",
		},
		{
			name:           "Stale Revision",
			body:           `{"name": "alicia", "expected_revision": 2}`,
			mockSetup:      func(m *mockService) { m.updateErr = coordinator.ErrStaleRevision },
			expectedStatus: http.StatusConflict,
			expectedInBody: "expected revision is stale",
		},
		{
			name:           "Deleting",
			body:           `{"name": "alicia", "expected_revision": 3}`,
			mockSetup:      func(m *mockService) { m.updateErr = coordinator.ErrDeleting },
			expectedStatus: http.StatusConflict,
			expectedInBody: "being deleted",
		},
		{
			name:           "Not Found",
			body:           `{"name": "alicia", "expected_revision": 3}`,
			mockSetup:      func(m *mockService) { m.updateErr = store.ErrNotFound },
			expectedStatus: http.StatusNotFound,
			expectedInBody: "Entity not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			tt.mockSetup(svc)
			h := New(Dependencies{Service: svc, Store: &mockPinger{}})

			req := httptest.NewRequest(http.MethodPut, "/entities/"+testID, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			routes(h).ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("handler returned unexpected body: got %v want substring %v", rr.Body.String(), tt.expectedInBody)
			}
		})
	}
}

func TestUpdateEntity_PassesRevision(t *testing.T) {
	svc := &mockService{updateResp: readyEntity()}
	h := New(Dependencies{Service: svc, Store: &mockPinger{}})

	req := httptest.NewRequest(http.MethodPut, "/entities/"+strings.ToUpper(testID),
		strings.NewReader(`{"name": "alicia", "expected_revision": 7}`))
	rr := httptest.NewRecorder()
	routes(h).ServeHTTP(rr, req)

	if svc.capturedRevision != 7 {
		t.Errorf("revision = %d, want 7", svc.capturedRevision)
	}
	if svc.capturedID != testID {
		t.Errorf("id = %q, want canonical %q", svc.capturedID, testID)
	}
	if svc.capturedAttrs.Name != "alicia" {
		t.Errorf("name = %q, want alicia", svc.capturedAttrs.Name)
	}
}

func TestDeleteEntity(t *testing.T) {
	tests := []struct {
		name           string
		mockSetup      func(*mockService)
		expectedStatus int
		expectedInBody string
	}{
		{
			name: "Accepted",
			mockSetup: func(m *mockService) {
				e := readyEntity()
				e.State = store.StateStopping
				e.Deleting = true
				m.deleteResp = e
			},
			expectedStatus: http.StatusAccepted,
			expectedInBody: `"deleting":true`,
		},
		{
			name: "Already Removed",
			mockSetup: func(m *mockService) {
				m.deleteResp = &store.Entity{ID: testID, State: store.StateRemoved, Deleting: true}
			},
			expectedStatus: http.StatusAccepted,
			expectedInBody: `"state":"removed"`,
		},
		{
			name:           "Never Existed",
			mockSetup:      func(m *mockService) { m.deleteErr = store.ErrNotFound },
			expectedStatus: http.StatusNotFound,
			expectedInBody: "Entity not found",
		},
		{
			name:           "Busy",
			mockSetup:      func(m *mockService) { m.deleteErr = coordinator.ErrBusy },
			expectedStatus: http.StatusConflict,
			expectedInBody: "try again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			tt.mockSetup(svc)
			h := New(Dependencies{Service: svc, Store: &mockPinger{}})

			req := httptest.NewRequest(http.MethodDelete, "/entities/"+testID, nil)
			rr := httptest.NewRecorder()
			routes(h).ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("handler returned unexpected body: got %v want substring %v", rr.Body.String(), tt.expectedInBody)
			}
		})
	}
}

func TestGetEntityStatus(t *testing.T) {
	t.Run("With Job", func(t *testing.T) {
		e := readyEntity()
		job := &reconciler.JobStatus{
			EntityID:  e.ID,
			Target:    reconciler.TargetReady,
			Revision:  3,
			Phase:     reconciler.PhaseSucceeded,
			Attempts:  4,
			UpdatedAt: time.Now(),
		}
		svc := &mockService{statusResp: statusOf(e, job)}
		h := New(Dependencies{Service: svc, Store: &mockPinger{}})

		req := httptest.NewRequest(http.MethodGet, "/entities/"+testID+"/status", nil)
		rr := httptest.NewRecorder()
		routes(h).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var resp api.EntityStatusResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.State != api.StateReady {
			t.Errorf("state = %q, want ready", resp.State)
		}
		if resp.Job == nil || resp.Job.Attempts != 4 || resp.Job.Phase != "succeeded" {
			t.Errorf("job = %+v", resp.Job)
		}
	})

	t.Run("Without Job", func(t *testing.T) {
		svc := &mockService{statusResp: statusOf(pendingEntity(), nil)}
		h := New(Dependencies{Service: svc, Store: &mockPinger{}})

		req := httptest.NewRequest(http.MethodGet, "/entities/"+testID+"/status", nil)
		rr := httptest.NewRecorder()
		routes(h).ServeHTTP(rr, req)

		if strings.Contains(rr.Body.String(), `"job"`) {
			t.Errorf("body = %s, want no job", rr.Body.String())
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		svc := &mockService{statusErr: store.ErrNotFound}
		h := New(Dependencies{Service: svc, Store: &mockPinger{}})

		req := httptest.NewRequest(http.MethodGet, "/entities/"+testID+"/status", nil)
		rr := httptest.NewRecorder()
		routes(h).ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rr.Code)
		}
	})
}

func TestRetryEntity(t *testing.T) {
	t.Run("Accepted", func(t *testing.T) {
		svc := &mockService{retryResp: pendingEntity()}
		h := New(Dependencies{Service: svc, Store: &mockPinger{}})

		req := httptest.NewRequest(http.MethodPost, "/entities/"+testID+"/retry", nil)
		rr := httptest.NewRecorder()
		routes(h).ServeHTTP(rr, req)

		if rr.Code != http.StatusAccepted {
			t.Errorf("status = %d, want 202", rr.Code)
		}
		if svc.capturedID != testID {
			t.Errorf("id = %q", svc.capturedID)
		}
	})

	t.Run("Not Failed", func(t *testing.T) {
		svc := &mockService{retryErr: coordinator.ErrNotFailed}
		h := New(Dependencies{Service: svc, Store: &mockPinger{}})

		req := httptest.NewRequest(http.MethodPost, "/entities/"+testID+"/retry", nil)
		rr := httptest.NewRecorder()
		routes(h).ServeHTTP(rr, req)

		if rr.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rr.Code)
		}
	})
}
