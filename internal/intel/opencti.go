// OpenCTI source adapter. OpenCTI is a STIX-based threat intelligence
// platform queried over GraphQL; each indicator carries a numeric
// confidence and a label set.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	openCTISearchLimit  = 100
	openCTIProbeTimeout = 10 * time.Second
)

const openCTISearchQuery = `query IndicatorSearch($search: String, $first: Int) {
  indicators(search: $search, first: $first, orderBy: created_at, orderMode: desc) {
    edges {
      node {
        id
        name
        pattern
        pattern_type
        confidence
        created_at
        valid_from
        objectLabel {
          edges {
            node {
              value
            }
          }
        }
      }
    }
  }
}`

const openCTIRecentQuery = `query RecentIndicators($since: DateTime!, $first: Int) {
  indicators(
    filters: {mode: and, filterGroups: [], filters: [{key: "created_at", values: [$since], operator: gt}]}
    first: $first
    orderBy: created_at
    orderMode: desc
  ) {
    edges {
      node {
        id
        name
        pattern
        pattern_type
        confidence
        created_at
        valid_from
        objectLabel {
          edges {
            node {
              value
            }
          }
        }
      }
    }
  }
}`

const openCTIProbeQuery = `query { about { version } }`

// OpenCTIConfig holds OpenCTI connection settings.
type OpenCTIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultOpenCTIConfig returns sensible defaults for OpenCTI.
func DefaultOpenCTIConfig() OpenCTIConfig {
	return OpenCTIConfig{
		APIKeyEnv: "OPENCTI_API_KEY",
		Timeout:   30 * time.Second,
	}
}

// Configured reports whether both the URL and the API key are available.
func (c OpenCTIConfig) Configured() bool {
	return c.BaseURL != "" && os.Getenv(c.APIKeyEnv) != ""
}

// OpenCTIProvider implements the Provider interface for OpenCTI.
type OpenCTIProvider struct {
	config     OpenCTIConfig
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOpenCTIProvider creates a new OpenCTI adapter.
func NewOpenCTIProvider(config OpenCTIConfig, logger *zap.Logger) (*OpenCTIProvider, error) {
	apiKey := os.Getenv(config.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenCTI API key not found in env var %s", ErrNotConfigured, config.APIKeyEnv)
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%w: OpenCTI base URL is required", ErrNotConfigured)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenCTIProvider{
		config:     config,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenCTIProvider) Name() string {
	return string(SourceOpenCTI)
}

// Search queries OpenCTI indicators matching the indicator value.
func (p *OpenCTIProvider) Search(ctx context.Context, q Query) (Record, error) {
	return p.execute(ctx, openCTISearchQuery, map[string]any{
		"search": q.Value,
		"first":  openCTISearchLimit,
	})
}

// Recent returns indicators created since the given time.
func (p *OpenCTIProvider) Recent(ctx context.Context, since time.Time) (Record, error) {
	return p.execute(ctx, openCTIRecentQuery, map[string]any{
		"since": since.UTC().Format(time.RFC3339),
		"first": openCTISearchLimit,
	})
}

func (p *OpenCTIProvider) execute(ctx context.Context, query string, variables map[string]any) (Record, error) {
	resp, err := p.post(ctx, query, variables)
	if err != nil {
		return nil, err
	}

	indicators := make([]OpenCTIIndicator, 0, len(resp.Data.Indicators.Edges))
	for _, edge := range resp.Data.Indicators.Edges {
		indicators = append(indicators, edge.Node)
	}

	return &OpenCTIRecord{
		Indicators:      indicators,
		ConfidenceScore: confidenceFromIndicators(indicators),
		TotalCount:      len(indicators),
	}, nil
}

// Probe verifies connectivity and credentials against OpenCTI.
func (p *OpenCTIProvider) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, openCTIProbeTimeout)
	defer cancel()

	_, err := p.post(ctx, openCTIProbeQuery, nil)
	return err
}

// post issues one GraphQL request and decodes the envelope, mapping
// HTTP and GraphQL-level errors into the failure taxonomy.
func (p *OpenCTIProvider) post(ctx context.Context, query string, variables map[string]any) (*openCTIResponse, error) {
	payload := openCTIRequest{Query: query, Variables: variables}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: opencti: %v", ErrAdapter, err)
	}

	url := strings.TrimSuffix(p.config.BaseURL, "/") + "/graphql"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: opencti: %v", ErrAdapter, err)
	}

	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport("opencti", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: OpenCTI authentication failed - check API key", ErrAuth)
	default:
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: OpenCTI returned %d: %s", ErrAdapter, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var decoded openCTIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: failed to decode OpenCTI response: %v", ErrAdapter, err)
	}

	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("%w: OpenCTI query failed: %s", ErrAdapter, decoded.Errors[0].Message)
	}

	return &decoded, nil
}

// OpenCTIRecord is the adapter-owned search result for OpenCTI.
type OpenCTIRecord struct {
	Indicators      []OpenCTIIndicator `json:"indicators"`
	ConfidenceScore float64            `json:"confidence_score"`
	TotalCount      int                `json:"total_count"`
}

// SourceName identifies the backend that produced this record.
func (r *OpenCTIRecord) SourceName() string { return string(SourceOpenCTI) }

// Total returns the number of matched indicators.
func (r *OpenCTIRecord) Total() int { return r.TotalCount }

// Summary converts the record to the per-source result slice.
func (r *OpenCTIRecord) Summary() SourceSummary {
	score := r.ConfidenceScore
	return SourceSummary{
		TotalCount:      r.TotalCount,
		Indicators:      r.Indicators,
		ConfidenceScore: &score,
	}
}

// OpenCTI API types

type openCTIRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type openCTIResponse struct {
	Data struct {
		Indicators struct {
			Edges []struct {
				Node OpenCTIIndicator `json:"node"`
			} `json:"edges"`
		} `json:"indicators"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// OpenCTIIndicator represents one indicator node. Confidence is nil
// when the platform did not score the indicator.
type OpenCTIIndicator struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Pattern     string        `json:"pattern"`
	PatternType string        `json:"pattern_type"`
	Confidence  *float64      `json:"confidence"`
	CreatedAt   *time.Time    `json:"created_at"`
	ValidFrom   *time.Time    `json:"valid_from"`
	ObjectLabel openCTILabels `json:"objectLabel"`
}

type openCTILabels struct {
	Edges []struct {
		Node struct {
			Value string `json:"value"`
		} `json:"node"`
	} `json:"edges"`
}

// LabelValues flattens the label connection into plain strings.
func (i OpenCTIIndicator) LabelValues() []string {
	labels := make([]string, 0, len(i.ObjectLabel.Edges))
	for _, edge := range i.ObjectLabel.Edges {
		if edge.Node.Value != "" {
			labels = append(labels, edge.Node.Value)
		}
	}
	return labels
}

// ObservedTime returns the indicator's creation time, falling back to
// valid_from.
func (i OpenCTIIndicator) ObservedTime() *time.Time {
	if i.CreatedAt != nil {
		return i.CreatedAt
	}
	return i.ValidFrom
}

// confidenceFromIndicators averages the confidences that are present.
// Missing confidence is excluded rather than treated as zero; an empty
// or all-missing set scores 0.
func confidenceFromIndicators(indicators []OpenCTIIndicator) float64 {
	var sum float64
	var counted int
	for _, ind := range indicators {
		if ind.Confidence == nil {
			continue
		}
		sum += *ind.Confidence
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}
