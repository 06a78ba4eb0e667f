package intel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func testOpenCTIConfig(baseURL string) OpenCTIConfig {
	return OpenCTIConfig{
		BaseURL:   baseURL,
		APIKeyEnv: "TEST_OPENCTI_KEY",
		Timeout:   5 * time.Second,
	}
}

// =============================================================================
// Provider Creation Tests
// =============================================================================

// TestNewOpenCTIProvider_MissingAPIKey verifies that a missing token
// surfaces as ErrNotConfigured.
func TestNewOpenCTIProvider_MissingAPIKey(t *testing.T) {
	os.Unsetenv("TEST_OPENCTI_KEY")

	_, err := NewOpenCTIProvider(testOpenCTIConfig("https://opencti.example.org"), nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got: %v", err)
	}
}

// TestNewOpenCTIProvider_Success verifies successful provider creation.
func TestNewOpenCTIProvider_Success(t *testing.T) {
	os.Setenv("TEST_OPENCTI_KEY", "test-token")
	defer os.Unsetenv("TEST_OPENCTI_KEY")

	provider, err := NewOpenCTIProvider(testOpenCTIConfig("https://opencti.example.org"), nil)
	if err != nil {
		t.Fatalf("NewOpenCTIProvider should succeed: %v", err)
	}
	if provider.Name() != "opencti" {
		t.Errorf("expected name 'opencti', got %q", provider.Name())
	}
}

// =============================================================================
// Search Tests
// =============================================================================

// TestOpenCTISearch_RequestShape verifies the GraphQL endpoint, the
// bearer token, and the search variables.
func TestOpenCTISearch_RequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/graphql" {
			t.Errorf("expected path /graphql, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}

		var req openCTIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode GraphQL request: %v", err)
		}
		if !strings.Contains(req.Query, "indicators(") {
			t.Error("request should carry the indicator search query")
		}
		if req.Variables["search"] != "evil.example" {
			t.Errorf("expected search variable 'evil.example', got %v", req.Variables["search"])
		}
		if req.Variables["first"] != float64(100) {
			t.Errorf("expected page size 100, got %v", req.Variables["first"])
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"indicators":{"edges":[]}}}`))
	}))
	defer server.Close()

	os.Setenv("TEST_OPENCTI_KEY", "test-token")
	defer os.Unsetenv("TEST_OPENCTI_KEY")

	provider, _ := NewOpenCTIProvider(testOpenCTIConfig(server.URL), nil)

	record, err := provider.Search(context.Background(), Query{Type: QueryTypeDomain, Value: "evil.example"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if record.Total() != 0 {
		t.Errorf("expected 0 indicators, got %d", record.Total())
	}
}

// TestOpenCTISearch_ParsesIndicators verifies node decoding including
// labels and the aggregate confidence.
func TestOpenCTISearch_ParsesIndicators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"indicators":{"edges":[
			{"node":{"id":"i1","name":"Emotet drop","confidence":90,"created_at":"2026-08-01T10:00:00Z","objectLabel":{"edges":[{"node":{"value":"malware"}}]}}},
			{"node":{"id":"i2","name":"Unscored sibling","objectLabel":{"edges":[]}}},
			{"node":{"id":"i3","name":"Phish kit","confidence":50,"objectLabel":{"edges":[{"node":{"value":"phishing"}}]}}}
		]}}}`))
	}))
	defer server.Close()

	os.Setenv("TEST_OPENCTI_KEY", "test-token")
	defer os.Unsetenv("TEST_OPENCTI_KEY")

	provider, _ := NewOpenCTIProvider(testOpenCTIConfig(server.URL), nil)

	record, err := provider.Search(context.Background(), Query{Type: QueryTypeDomain, Value: "evil.example"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	ctiRecord, ok := record.(*OpenCTIRecord)
	if !ok {
		t.Fatalf("expected *OpenCTIRecord, got %T", record)
	}
	if ctiRecord.TotalCount != 3 {
		t.Errorf("expected 3 indicators, got %d", ctiRecord.TotalCount)
	}
	// Mean over scored indicators only: (90+50)/2.
	if ctiRecord.ConfidenceScore != 70 {
		t.Errorf("expected confidence 70, got %f", ctiRecord.ConfidenceScore)
	}
	labels := ctiRecord.Indicators[0].LabelValues()
	if len(labels) != 1 || labels[0] != "malware" {
		t.Errorf("unexpected labels: %v", labels)
	}
}

// TestOpenCTISearch_GraphQLError verifies an errors array in a 200
// response maps to ErrAdapter carrying the message.
func TestOpenCTISearch_GraphQLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"errors":[{"message":"unknown field created_at"}]}`))
	}))
	defer server.Close()

	os.Setenv("TEST_OPENCTI_KEY", "test-token")
	defer os.Unsetenv("TEST_OPENCTI_KEY")

	provider, _ := NewOpenCTIProvider(testOpenCTIConfig(server.URL), nil)

	_, err := provider.Search(context.Background(), Query{Type: QueryTypeIP, Value: "1.2.3.4"})
	if !errors.Is(err, ErrAdapter) {
		t.Fatalf("expected ErrAdapter, got: %v", err)
	}
	if !strings.Contains(err.Error(), "unknown field created_at") {
		t.Errorf("error should carry the GraphQL message, got: %v", err)
	}
}

// TestOpenCTISearch_AuthFailure verifies 401 maps to ErrAuth.
func TestOpenCTISearch_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	os.Setenv("TEST_OPENCTI_KEY", "bad-token")
	defer os.Unsetenv("TEST_OPENCTI_KEY")

	provider, _ := NewOpenCTIProvider(testOpenCTIConfig(server.URL), nil)

	_, err := provider.Search(context.Background(), Query{Type: QueryTypeIP, Value: "1.2.3.4"})
	if !errors.Is(err, ErrAuth) {
		t.Errorf("expected ErrAuth, got: %v", err)
	}
}

// TestOpenCTISearch_Unreachable verifies connection failures map to
// ErrUnreachable.
func TestOpenCTISearch_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	os.Setenv("TEST_OPENCTI_KEY", "test-token")
	defer os.Unsetenv("TEST_OPENCTI_KEY")

	provider, _ := NewOpenCTIProvider(testOpenCTIConfig(url), nil)

	_, err := provider.Search(context.Background(), Query{Type: QueryTypeIP, Value: "1.2.3.4"})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got: %v", err)
	}
}

// =============================================================================
// Confidence Aggregation Tests
// =============================================================================

// TestConfidenceFromIndicators verifies missing confidence is excluded
// from the mean rather than counted as zero.
func TestConfidenceFromIndicators(t *testing.T) {
	conf := func(v float64) OpenCTIIndicator {
		return OpenCTIIndicator{Confidence: &v}
	}

	tests := []struct {
		name       string
		indicators []OpenCTIIndicator
		want       float64
	}{
		{"empty set", nil, 0},
		{"all unscored", []OpenCTIIndicator{{}, {}}, 0},
		{"single value", []OpenCTIIndicator{conf(75)}, 75},
		{"mean of scored only", []OpenCTIIndicator{conf(80), {}, conf(40)}, 60},
		{"zero is a real score", []OpenCTIIndicator{conf(0), conf(100)}, 50},
	}

	for _, tt := range tests {
		if got := confidenceFromIndicators(tt.indicators); got != tt.want {
			t.Errorf("%s: expected %f, got %f", tt.name, tt.want, got)
		}
	}
}

// =============================================================================
// Recent and Probe Tests
// =============================================================================

// TestOpenCTIRecent_SendsSinceVariable verifies trend lookups send the
// RFC3339 cutoff.
func TestOpenCTIRecent_SendsSinceVariable(t *testing.T) {
	since := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openCTIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if !strings.Contains(req.Query, "created_at") {
			t.Error("recent query should filter on created_at")
		}
		if req.Variables["since"] != "2026-08-28T12:00:00Z" {
			t.Errorf("expected RFC3339 since variable, got %v", req.Variables["since"])
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"indicators":{"edges":[]}}}`))
	}))
	defer server.Close()

	os.Setenv("TEST_OPENCTI_KEY", "test-token")
	defer os.Unsetenv("TEST_OPENCTI_KEY")

	provider, _ := NewOpenCTIProvider(testOpenCTIConfig(server.URL), nil)

	if _, err := provider.Recent(context.Background(), since); err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
}

// TestOpenCTIProbe verifies the liveness query round-trips.
func TestOpenCTIProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openCTIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if !strings.Contains(req.Query, "about") {
			t.Errorf("expected about query, got %q", req.Query)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"about":{"version":"6.1.0"}}}`))
	}))
	defer server.Close()

	os.Setenv("TEST_OPENCTI_KEY", "test-token")
	defer os.Unsetenv("TEST_OPENCTI_KEY")

	provider, _ := NewOpenCTIProvider(testOpenCTIConfig(server.URL), nil)

	if err := provider.Probe(context.Background()); err != nil {
		t.Errorf("Probe should succeed: %v", err)
	}
}
