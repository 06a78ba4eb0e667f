// MISP (Malware Information Sharing Platform) source adapter. MISP is an
// event/attribute-based threat sharing system; lookups go through its
// REST search endpoint.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	mispSearchLimit  = 100
	mispProbeTimeout = 10 * time.Second
)

// MISPConfig holds MISP connection settings.
type MISPConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultMISPConfig returns sensible defaults for MISP.
func DefaultMISPConfig() MISPConfig {
	return MISPConfig{
		APIKeyEnv: "MISP_API_KEY",
		Timeout:   30 * time.Second,
	}
}

// Configured reports whether both the URL and the API key are available.
func (c MISPConfig) Configured() bool {
	return c.BaseURL != "" && os.Getenv(c.APIKeyEnv) != ""
}

// MISPProvider implements the Provider interface for MISP.
type MISPProvider struct {
	config     MISPConfig
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMISPProvider creates a new MISP adapter. The API key is resolved
// from the environment once at construction.
func NewMISPProvider(config MISPConfig, logger *zap.Logger) (*MISPProvider, error) {
	apiKey := os.Getenv(config.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: MISP API key not found in env var %s", ErrNotConfigured, config.APIKeyEnv)
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%w: MISP base URL is required", ErrNotConfigured)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MISPProvider{
		config:     config,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Name returns the provider identifier.
func (p *MISPProvider) Name() string {
	return string(SourceMISP)
}

// Search queries MISP events matching the indicator value.
func (p *MISPProvider) Search(ctx context.Context, q Query) (Record, error) {
	mispType := toMISPType(q.Type)
	if mispType == "" {
		return nil, fmt.Errorf("%w: unsupported query type for MISP: %s", ErrInvalidQuery, q.Type)
	}

	searchReq := mispSearchRequest{
		Value: q.Value,
		Type:  mispType,
		Limit: mispSearchLimit,
	}
	return p.search(ctx, searchReq)
}

// Recent returns events published since the given time, used by trend
// analysis. The value filter is replaced by a timestamp filter.
func (p *MISPProvider) Recent(ctx context.Context, since time.Time) (Record, error) {
	searchReq := mispSearchRequest{
		Timestamp: since.Unix(),
		Limit:     mispSearchLimit,
	}
	return p.search(ctx, searchReq)
}

func (p *MISPProvider) search(ctx context.Context, searchReq mispSearchRequest) (Record, error) {
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, fmt.Errorf("%w: misp: %v", ErrAdapter, err)
	}

	req, err := p.newRequest(ctx, http.MethodPost, "/events/restSearch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: misp: %v", ErrAdapter, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport("misp", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: MISP authentication failed - check API key", ErrAuth)
	default:
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: MISP returned %d: %s", ErrAdapter, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var searchResp mispSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode MISP response: %v", ErrAdapter, err)
	}

	events := make([]MISPEvent, 0, len(searchResp.Response))
	for _, wrapped := range searchResp.Response {
		events = append(events, wrapped.Event)
	}

	return &MISPRecord{
		Events:      events,
		ThreatLevel: threatLevelFromEvents(events),
		TotalCount:  len(events),
	}, nil
}

// Probe verifies connectivity and credentials against MISP.
func (p *MISPProvider) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mispProbeTimeout)
	defer cancel()

	req, err := p.newRequest(ctx, http.MethodGet, "/servers/getVersion", nil)
	if err != nil {
		return fmt.Errorf("%w: misp: %v", ErrAdapter, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return wrapTransport("misp", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: MISP authentication failed - check API key", ErrAuth)
	default:
		return fmt.Errorf("%w: MISP returned status %d", ErrAdapter, resp.StatusCode)
	}
}

// newRequest creates an authenticated MISP API request.
func (p *MISPProvider) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := strings.TrimSuffix(p.config.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

// MISPRecord is the adapter-owned search result for MISP.
type MISPRecord struct {
	Events      []MISPEvent `json:"events"`
	ThreatLevel ThreatLevel `json:"threat_level"`
	TotalCount  int         `json:"total_count"`
}

// SourceName identifies the backend that produced this record.
func (r *MISPRecord) SourceName() string { return string(SourceMISP) }

// Total returns the number of matched events.
func (r *MISPRecord) Total() int { return r.TotalCount }

// Summary converts the record to the per-source result slice.
func (r *MISPRecord) Summary() SourceSummary {
	return SourceSummary{
		TotalCount:  r.TotalCount,
		Events:      r.Events,
		ThreatLevel: r.ThreatLevel,
	}
}

// MISP API types

type mispSearchRequest struct {
	Value     string `json:"value,omitempty"`
	Type      string `json:"type,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type mispSearchResponse struct {
	Response []struct {
		Event MISPEvent `json:"Event"`
	} `json:"response"`
}

// MISPEvent represents a MISP event. ThreatLevelID is MISP's native
// ordinal severity: 1=high ... 4=undefined, lower is more severe.
type MISPEvent struct {
	ID            string          `json:"id"`
	UUID          string          `json:"uuid"`
	Info          string          `json:"info"`
	Date          string          `json:"date"`
	ThreatLevelID string          `json:"threat_level_id"`
	Timestamp     string          `json:"timestamp"`
	Published     bool            `json:"published"`
	Attribute     []MISPAttribute `json:"Attribute,omitempty"`
	Tag           []MISPTag       `json:"Tag,omitempty"`
}

// MISPAttribute represents an attribute within an event.
type MISPAttribute struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Value    string `json:"value"`
}

// MISPTag represents a MISP tag.
type MISPTag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ObservedTime returns the event's last-modified time, when parseable.
func (e MISPEvent) ObservedTime() *time.Time {
	unix, err := strconv.ParseInt(e.Timestamp, 10, 64)
	if err != nil || unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}

// toMISPType maps a canonical query type to MISP's attribute type
// vocabulary.
func toMISPType(t QueryType) string {
	switch t {
	case QueryTypeIP:
		return "ip-src|ip-dst"
	case QueryTypeDomain:
		return "domain"
	case QueryTypeHash:
		return "md5|sha1|sha256"
	case QueryTypeURL:
		return "url"
	case QueryTypeEmail:
		return "email-src|email-dst"
	case QueryTypeCVE:
		return "vulnerability"
	default:
		return ""
	}
}

// threatLevelFromEvents buckets the arithmetic mean of the events'
// native severities. Averaging keeps one outlier event from dominating
// the per-source assessment; the thresholds are a tunable policy.
func threatLevelFromEvents(events []MISPEvent) ThreatLevel {
	if len(events) == 0 {
		return ThreatLevelLow
	}

	var sum float64
	var counted int
	for _, ev := range events {
		id, err := strconv.Atoi(ev.ThreatLevelID)
		if err != nil || id < 1 {
			// Undefined severity, treat as the least severe bucket.
			id = 4
		}
		sum += float64(id)
		counted++
	}

	avg := sum / float64(counted)
	switch {
	case avg < 2:
		return ThreatLevelCritical
	case avg < 3:
		return ThreatLevelHigh
	case avg < 4:
		return ThreatLevelMedium
	default:
		return ThreatLevelLow
	}
}
