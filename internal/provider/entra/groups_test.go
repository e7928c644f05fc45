package entra

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gratbox/graph-csv-sync/internal/graph"
	"github.com/gratbox/graph-csv-sync/internal/metrics"
	"github.com/gratbox/graph-csv-sync/internal/record"
)

type staticTokens struct{}

func (staticTokens) Token(ctx context.Context) (string, error) { return "test-token", nil }

type capturedRequest struct {
	method string
	url    string
	body   string
}

type mockHttper struct {
	requests []capturedRequest
	respond  func(req *http.Request) (*http.Response, error)
}

func (m *mockHttper) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		body = string(raw)
	}
	m.requests = append(m.requests, capturedRequest{method: req.Method, url: req.URL.String(), body: body})
	return m.respond(req)
}

func jsonResp(code int, body string) (*http.Response, error) {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body))}, nil
}

func newTestProvider(t *testing.T, h *mockHttper) *GroupProvider {
	t.Helper()
	caller := graph.NewCaller(h, graph.CallerOpts{MaxRetries: 1}, metrics.New(false))
	client := graph.NewClient(caller, staticTokens{})
	p, err := New(client, "11111111-2222-3333-4444-555555555555")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestFetchMembers(t *testing.T) {
	h := &mockHttper{respond: func(req *http.Request) (*http.Response, error) {
		return jsonResp(200, `{"value":[
			{"id":"aaa","createdDateTime":"2023-01-01T00:00:00Z"},
			{"id":"bbb","createdDateTime":"2024-06-15T12:00:00Z"}]}`)
	}}
	p := newTestProvider(t, h)

	records, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Key != "aaa" || records[0].ID != "aaa" {
		t.Errorf("unexpected record: %+v", records[0])
	}
	if records[0].Created.IsZero() {
		t.Error("expected createdDateTime to be parsed")
	}
	if !strings.Contains(h.requests[0].url, "/groups/11111111-2222-3333-4444-555555555555/members") {
		t.Errorf("unexpected fetch url: %s", h.requests[0].url)
	}
}

func TestAddMember(t *testing.T) {
	h := &mockHttper{respond: func(req *http.Request) (*http.Response, error) {
		return jsonResp(204, ``)
	}}
	p := newTestProvider(t, h)

	err := p.Add(context.Background(), record.DesiredRecord{Key: "aaa-bbb"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := h.requests[0]
	if req.method != http.MethodPost || !strings.HasSuffix(req.url, "/members/$ref") {
		t.Errorf("unexpected request: %s %s", req.method, req.url)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(req.body), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if !strings.HasSuffix(body["@odata.id"], "/directoryObjects/aaa-bbb") {
		t.Errorf("unexpected @odata.id: %s", body["@odata.id"])
	}
}

func TestRemoveMember(t *testing.T) {
	h := &mockHttper{respond: func(req *http.Request) (*http.Response, error) {
		return jsonResp(204, ``)
	}}
	p := newTestProvider(t, h)

	err := p.Remove(context.Background(), record.RemoteRecord{Key: "aaa", ID: "aaa"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := h.requests[0]
	if req.method != http.MethodDelete || !strings.HasSuffix(req.url, "/members/aaa/$ref") {
		t.Errorf("unexpected request: %s %s", req.method, req.url)
	}
}

func TestUpdateMemberIsNoOp(t *testing.T) {
	h := &mockHttper{respond: func(req *http.Request) (*http.Response, error) {
		t.Fatal("update must not call the api")
		return nil, nil
	}}
	p := newTestProvider(t, h)

	if err := p.Update(context.Background(), record.DesiredRecord{}, record.RemoteRecord{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRequiresGroupID(t *testing.T) {
	if _, err := New(nil, ""); err == nil {
		t.Fatal("expected error for empty group id")
	}
}
