package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensource-finance/peregrine/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(domain.RemoteConfig{
		Endpoint:       srv.URL,
		APIKey:         "test-key",
		Region:         "eu-west-1",
		TimeoutSeconds: 5,
	}, slog.Default())
}

func TestCallSetsHeaders(t *testing.T) {
	var gotTarget, gotKey, gotRegion string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotTarget = r.Header.Get(TargetHeader)
		gotKey = r.Header.Get(APIKeyHeader)
		gotRegion = r.Header.Get(RegionHeader)
		w.WriteHeader(http.StatusOK)
	})

	resp, err := client.PutEntityType(context.Background(), &domain.EntityType{Name: "customer"})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if resp.HTTPStatus != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.HTTPStatus)
	}
	if gotTarget != "PutEntityType" {
		t.Errorf("expected target header PutEntityType, got %q", gotTarget)
	}
	if gotKey != "test-key" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	if gotRegion != "eu-west-1" {
		t.Errorf("expected region header, got %q", gotRegion)
	}
}

func TestCallDecodesListResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.EntityTypeList{
			EntityTypes: []domain.EntityType{{Name: "customer"}, {Name: "merchant"}},
		})
	})

	list, err := client.GetEntityTypes(context.Background())
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(list.EntityTypes) != 2 {
		t.Fatalf("expected 2 entity types, got %d", len(list.EntityTypes))
	}
	if list.EntityTypes[0].Name != "customer" {
		t.Errorf("expected customer, got %q", list.EntityTypes[0].Name)
	}
	if list.HTTPStatus != http.StatusOK {
		t.Errorf("expected status 200, got %d", list.HTTPStatus)
	}
}

func TestCallErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"conflict"}`, http.StatusConflict)
	})

	_, err := client.CreateVariable(context.Background(), &domain.Variable{Name: "amount"})
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
}

func TestCallSendsBody(t *testing.T) {
	var got domain.Rule
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	rule := &domain.Rule{
		RuleID:     "high-risk",
		DetectorID: "transaction_detector",
		Expression: "$score > 900",
		Outcomes:   []string{"review"},
		Language:   domain.RuleLanguage,
	}
	if _, err := client.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got.RuleID != "high-risk" || got.Expression != "$score > 900" {
		t.Errorf("request body mismatch: %+v", got)
	}
}

func TestIdentityClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"identity": "arn:service:role/peregrine"})
	}))
	defer srv.Close()

	client := NewIdentityClient(domain.RemoteConfig{
		IdentityEndpoint: srv.URL,
		TimeoutSeconds:   5,
	}, slog.Default())
	if client == nil {
		t.Fatal("expected identity client")
	}

	identity, err := client.CheckIdentity(context.Background())
	if err != nil {
		t.Fatalf("identity check failed: %v", err)
	}
	if identity != "arn:service:role/peregrine" {
		t.Errorf("unexpected identity %q", identity)
	}
}

func TestIdentityClientDisabled(t *testing.T) {
	client := NewIdentityClient(domain.RemoteConfig{}, slog.Default())
	if client != nil {
		t.Error("expected nil client when endpoint is empty")
	}
}
