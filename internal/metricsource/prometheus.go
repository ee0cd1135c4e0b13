package metricsource

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/prometheus/client_golang/api"
	promapi "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PromOptions configures a Prometheus-backed Source.
type PromOptions struct {
	Address         string
	BearerTokenFile string
	// Timeout is the default per-query deadline.
	Timeout time.Duration
	// RoundTripper overrides the HTTP transport (tests, proxies).
	RoundTripper http.RoundTripper
	Logger       logger.Logger
}

// PromClient runs instant queries against the Prometheus HTTP API.
type PromClient struct {
	api     promapi.API
	timeout time.Duration
	now     func() time.Time
	log     logger.Logger
}

// NewPromClient creates a client for the Prometheus server at opts.Address.
func NewPromClient(opts PromOptions) (*PromClient, error) {
	rt := opts.RoundTripper
	if rt == nil {
		rt = api.DefaultRoundTripper
	}

	token, err := readTokenFile(opts.BearerTokenFile)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(api.Config{
		Address: opts.Address,
		RoundTripper: &bearerAuthRoundTripper{
			parent: rt,
			token:  token,
		},
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot create Prometheus client for "+opts.Address,
			"Check metrics.address in your config")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &PromClient{
		api:     promapi.NewAPI(client),
		timeout: timeout,
		now:     time.Now,
		log:     logger.OrDefault(opts.Logger).With("metricsource"),
	}, nil
}

// Query runs q as an instant query. It fails with an ErrTimeout error when
// the per-query deadline elapses, ErrCanceled when the caller cancels, and
// ErrSource for any backend-reported or malformed response.
func (c *PromClient) Query(ctx context.Context, q Query) ([]Sample, error) {
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, warnings, err := c.api.Query(qctx, q.Expr, c.now())
	if err != nil {
		return nil, classify(ctx, qctx, q, timeout, err)
	}
	if len(warnings) > 0 {
		c.log.Debug("query %s returned warnings: %s", q.Name, strings.Join(warnings, "; "))
	}

	samples, err := toSamples(value)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSource,
			fmt.Sprintf("Query %s returned an unusable result", q.Name), "")
	}
	return samples, nil
}

// classify maps a transport or API error to the failure taxonomy.
func classify(parent, qctx context.Context, q Query, timeout time.Duration, err error) error {
	if perr := parent.Err(); perr != nil {
		code := errors.ErrCanceled
		if stderrors.Is(perr, context.DeadlineExceeded) {
			code = errors.ErrTimeout
		}
		return errors.WrapWithCode(perr, code, fmt.Sprintf("Query %s canceled", q.Name), "")
	}

	if stderrors.Is(qctx.Err(), context.DeadlineExceeded) {
		return errors.WrapWithCode(err, errors.ErrTimeout,
			fmt.Sprintf("Query %s timed out after %s", q.Name, timeout),
			"Raise the query timeout or check the metrics backend load")
	}

	var apiErr *promapi.Error
	if stderrors.As(err, &apiErr) {
		return errors.WrapWithCode(stderrors.New(apiErr.Msg), errors.ErrSource,
			fmt.Sprintf("Query %s failed (%s)", q.Name, apiErr.Type), "")
	}

	return errors.WrapWithCode(err, errors.ErrSource, fmt.Sprintf("Query %s failed", q.Name), "")
}

// toSamples flattens an instant-query value. NaN values carry no signal
// and are skipped.
func toSamples(value model.Value) ([]Sample, error) {
	switch v := value.(type) {
	case model.Vector:
		out := make([]Sample, 0, len(v))
		for _, s := range v {
			f := float64(s.Value)
			if math.IsNaN(f) {
				continue
			}
			labels := make(map[string]string, len(s.Metric))
			for name, val := range s.Metric {
				labels[string(name)] = string(val)
			}
			out = append(out, Sample{
				Labels:      labels,
				Value:       f,
				TimestampMs: int64(s.Timestamp),
			})
		}
		return out, nil
	case *model.Scalar:
		if math.IsNaN(float64(v.Value)) {
			return nil, nil
		}
		return []Sample{{
			Labels:      map[string]string{},
			Value:       float64(v.Value),
			TimestampMs: int64(v.Timestamp),
		}}, nil
	case nil:
		return nil, stderrors.New("empty result")
	default:
		return nil, fmt.Errorf("unexpected result type %s", value.Type())
	}
}

type bearerAuthRoundTripper struct {
	parent http.RoundTripper
	token  string
}

func (rt *bearerAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+rt.token)
	}
	parent := rt.parent
	if parent == nil {
		parent = http.DefaultTransport
	}
	return parent.RoundTrip(req)
}

func readTokenFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot read bearer token file "+path,
			"Check metrics.bearer_token_file in your config")
	}
	return strings.TrimSpace(string(data)), nil
}
