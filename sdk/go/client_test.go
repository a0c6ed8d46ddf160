package tracelinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTraceForwardSendsQueryAndAuth(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"root":    map[string]any{"node_number": "LP-1", "children": []any{}},
				"summary": map[string]any{"total_nodes": 1, "qa_status": "Passed", "trace_completeness": 100},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "acme")
	c.BearerToken = "tok"
	yes := true
	res, err := c.TraceForward(context.Background(), "LP-1", TraceOptions{MaxDepth: 3, IncludeReversed: &yes})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if gotPath != "/v0/orgs/acme/trace/forward" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotQuery != "include_reversed=true&lp=LP-1&max_depth=3" {
		t.Fatalf("unexpected query %s", gotQuery)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth %q", gotAuth)
	}
	if !res.Success || res.Data.Root.NodeNumber != "LP-1" || res.Data.Summary.TraceCompleteness != 100 {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			t.Errorf("api key header missing")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"conflict","message":"license plate LP-1 already exists"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "acme")
	c.APIKey = "key"
	_, err := c.CreateLicensePlate(context.Background(), CreateLicensePlate{LPNumber: "LP-1", Quantity: "1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "conflict" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}
