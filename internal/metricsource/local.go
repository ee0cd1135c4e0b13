package metricsource

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// LocalPrefix routes an expression to the in-process host sampler.
const LocalPrefix = "local:"

// Host metric names.
const (
	HostCPUPercent = "cpu_percent"
	HostMemPercent = "mem_percent"
	HostMemUsed    = "mem_used"
	HostMemTotal   = "mem_total"
	HostMemAvail   = "mem_available"
)

// cpuSampleInterval is how long the CPU sample measures for.
const cpuSampleInterval = 200 * time.Millisecond

// LocalSource answers "local:<metric>" expressions from the machine the
// dashboard runs on. Samples carry a host label so they reconcile like any
// other node.
type LocalSource struct {
	hostname string
	now      func() time.Time
}

// NewLocalSource creates a source labeled with the current hostname.
func NewLocalSource() *LocalSource {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return &LocalSource{hostname: host, now: time.Now}
}

// Query samples one host metric.
func (l *LocalSource) Query(ctx context.Context, q Query) ([]Sample, error) {
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metric := strings.TrimPrefix(q.Expr, LocalPrefix)
	value, err := l.read(ctx, metric)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.WrapWithCode(ctxErr, errors.CodeOf(ctxErr),
				fmt.Sprintf("Query %s did not finish", q.Name), "")
		}
		return nil, errors.WrapWithCode(err, errors.ErrSource,
			fmt.Sprintf("Query %s failed", q.Name), "")
	}

	return []Sample{{
		Labels: map[string]string{
			"host":     l.hostname,
			"instance": "local",
		},
		Value:       value,
		TimestampMs: l.now().UnixMilli(),
	}}, nil
}

func (l *LocalSource) read(ctx context.Context, metric string) (float64, error) {
	switch metric {
	case HostCPUPercent:
		pcts, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
		if err != nil {
			return 0, err
		}
		if len(pcts) == 0 {
			return 0, fmt.Errorf("no cpu sample")
		}
		return pcts[0], nil
	case HostMemPercent, HostMemUsed, HostMemTotal, HostMemAvail:
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, err
		}
		switch metric {
		case HostMemPercent:
			return vm.UsedPercent, nil
		case HostMemUsed:
			return float64(vm.Used), nil
		case HostMemTotal:
			return float64(vm.Total), nil
		default:
			return float64(vm.Available), nil
		}
	default:
		return 0, fmt.Errorf("unknown local metric %q", metric)
	}
}

// Router sends "local:" expressions to Local and everything else to Remote.
type Router struct {
	Remote Source
	Local  Source
}

// Query dispatches q to the matching source.
func (r Router) Query(ctx context.Context, q Query) ([]Sample, error) {
	if strings.HasPrefix(q.Expr, LocalPrefix) {
		if r.Local == nil {
			return nil, errors.New(errors.ErrSource,
				fmt.Sprintf("Query %s needs the local sampler, which is disabled", q.Name),
				"Set local.enabled: true")
		}
		return r.Local.Query(ctx, q)
	}
	if r.Remote == nil {
		return nil, errors.New(errors.ErrSource,
			fmt.Sprintf("Query %s has no metrics backend", q.Name),
			"Set metrics.address")
	}
	return r.Remote.Query(ctx, q)
}
