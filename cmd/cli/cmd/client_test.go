package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"formplane/pkg/api"
)

func TestEntityClient_APIErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "entity conflict: expected revision is stale", Code: "409"})
	}))
	defer server.Close()

	client := NewEntityClient(server.URL+"/", "")
	_, err := client.UpdateEntity("e-1", api.UpdateEntityRequest{ExpectedRevision: 1})

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", apiErr.StatusCode)
	}
	if apiErr.Message != "entity conflict: expected revision is stale" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestEntityClient_PlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewEntityClient(server.URL, "").ListEntities()
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Message != "Too Many Requests" {
		t.Errorf("err = %v", err)
	}
}

func TestEntityClient_TokenOnlyWhenSet(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(api.ListEntitiesResponse{})
	}))
	defer server.Close()

	if _, err := NewEntityClient(server.URL, "").ListEntities(); err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}

	if _, err := NewEntityClient(server.URL, "abc").ListEntities(); err != nil {
		t.Fatal(err)
	}
	if got != "Bearer abc" {
		t.Errorf("Authorization = %q, want Bearer abc", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(&APIError{StatusCode: http.StatusNotFound}) {
		t.Error("expected 404 to be not found")
	}
	if IsNotFound(&APIError{StatusCode: http.StatusConflict}) {
		t.Error("409 is not not-found")
	}
}
