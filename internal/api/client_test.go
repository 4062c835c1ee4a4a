package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientAddSendsAuthAndBody(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq AddRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(AddResponse{RedirectURL: "/api/status/Work", State: "Accepted"})
	}))
	defer srv.Close()

	group := 3
	client := NewClient(srv.URL+"/", "hitomi", "secret", srv.Client())
	resp, err := client.Add(context.Background(), AddRequest{
		SourceDocumentID: "1001",
		InexistentTags:   map[string]TagDefinition{"x": {GroupID: &group, Name: "translated-x"}},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if gotPath != "/api/documents/hitomi/add" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotReq.InexistentTags["x"].Name != "translated-x" {
		t.Fatalf("unexpected request body: %+v", gotReq)
	}
	if resp.RedirectURL != "/api/status/Work" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/documents/hitomi/add":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(AddResponse{Message: "unresolved tags: x", Unresolved: []string{"x"}})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "not found"})
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "hitomi", "", srv.Client())
	_, err := client.Add(context.Background(), AddRequest{SourceDocumentID: "1001"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnprocessableEntity || len(se.Unresolved) != 1 {
		t.Fatalf("unexpected add error: %v", err)
	}

	_, err = client.StatusEntry(context.Background(), "a label")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientEscapesLabels(t *testing.T) {
	var gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRaw = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "hitomi", "", srv.Client())
	if err := client.ClearStatus(context.Background(), "a/b c"); err != nil {
		t.Fatalf("ClearStatus: %v", err)
	}
	if gotRaw != "/api/status/a%2Fb%20c" {
		t.Fatalf("unexpected escaped path %q", gotRaw)
	}
}
