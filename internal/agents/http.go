package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/pipeline"
)

// DefaultTimeout bounds each backend request.
const DefaultTimeout = 8 * time.Second

// maxErrorBody caps how much of an error response is quoted.
const maxErrorBody = 512

// HTTPSource reads from the agent backend's JSON API.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPSource creates a source for baseURL. A nil client uses
// http.DefaultClient.
func NewHTTPSource(baseURL string, client *http.Client, timeout time.Duration) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Invalid agent API URL %q", baseURL),
			"Set agents.url to the backend base URL, e.g. http://localhost:8000")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: timeout,
	}, nil
}

// Agents implements Source.
func (s *HTTPSource) Agents(ctx context.Context, f Filter) ([]Agent, error) {
	q := url.Values{}
	if f.Site != "" {
		q.Set("site_id", f.Site)
	}
	if f.Node != "" {
		q.Set("node_id", f.Node)
	}

	var out []Agent
	if err := s.get(ctx, "agents", "/api/agents", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Topology implements Source.
func (s *HTTPSource) Topology(ctx context.Context) (Topology, error) {
	var out Topology
	if err := s.get(ctx, "topology", "/api/topology", nil, &out); err != nil {
		return Topology{}, err
	}
	return out, nil
}

// Bottleneck implements BottleneckSource.
func (s *HTTPSource) Bottleneck(ctx context.Context) (pipeline.Snapshot, error) {
	var out pipeline.Snapshot
	if err := s.get(ctx, "bottleneck", "/api/system/bottleneck", nil, &out); err != nil {
		return pipeline.Snapshot{}, err
	}
	return out, nil
}

func (s *HTTPSource) get(ctx context.Context, name, path string, q url.Values, dst interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	target := s.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, fmt.Sprintf("Failed to build %s request", name), "")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.WrapWithCode(ctxErr, errors.CodeOf(ctxErr),
				fmt.Sprintf("Fetching %s did not finish", name), "")
		}
		return errors.WrapWithCode(err, errors.ErrSource,
			fmt.Sprintf("Failed to fetch %s", name),
			fmt.Sprintf("Check that the agent API at %s is reachable", s.baseURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.New(errors.ErrSource,
			fmt.Sprintf("Fetching %s failed: %s", name, resp.Status),
			strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return errors.WrapWithCode(err, errors.ErrSource,
			fmt.Sprintf("Malformed %s response", name), "")
	}
	return nil
}
