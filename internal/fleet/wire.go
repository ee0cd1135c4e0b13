package fleet

import (
	"context"
	"database/sql"
	"sort"

	"github.com/loopfactory/fleetdash/internal/agents"
	"github.com/loopfactory/fleetdash/internal/config"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/liveness"
	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/loopfactory/fleetdash/internal/logrelay"
	"github.com/loopfactory/fleetdash/internal/metricsource"
	"github.com/loopfactory/fleetdash/internal/observability"
	"github.com/loopfactory/fleetdash/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the backends the views read from.
type Deps struct {
	Metrics    metricsource.Source
	Local      metricsource.Source
	Agents     agents.Source
	Bottleneck agents.BottleneckSource
	Topology   *agents.TopologyCache
	Recorder   *observability.Recorder

	db *sql.DB
}

// Close releases database connections held by d.
func (d *Deps) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// BuildDeps connects the backends named in cfg. reg receives the
// dashboard's own metrics; nil disables them.
func BuildDeps(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log logger.Logger) (*Deps, error) {
	log = logger.OrDefault(log)
	d := &Deps{}

	router := metricsource.Router{}
	if cfg.Metrics.Address != "" {
		prom, err := metricsource.NewPromClient(metricsource.PromOptions{
			Address:         cfg.Metrics.Address,
			BearerTokenFile: cfg.Metrics.BearerTokenFile,
			Timeout:         cfg.Metrics.Timeout,
			Logger:          log,
		})
		if err != nil {
			return nil, err
		}
		router.Remote = prom
	}
	if cfg.Local.Enabled {
		local := metricsource.NewLocalSource()
		router.Local = local
		d.Local = local
	}
	d.Metrics = router

	httpSrc, err := agents.NewHTTPSource(cfg.Agents.URL, nil, cfg.Agents.Timeout)
	if err != nil {
		return nil, err
	}
	d.Bottleneck = httpSrc

	switch cfg.Agents.Source {
	case config.SourcePostgres:
		db, err := agents.OpenPostgres(ctx, cfg.Agents.DSN)
		if err != nil {
			return nil, err
		}
		d.db = db
		d.Agents = agents.NewPostgresSource(db)
		log.Debug("agents from postgres")
	default:
		d.Agents = httpSrc
		log.Debug("agents from %s", cfg.Agents.URL)
	}
	d.Topology = agents.NewTopologyCache(d.Agents)

	if reg != nil {
		d.Recorder = observability.NewRecorder(reg)
	}
	return d, nil
}

// Queries converts configured queries into metric queries and reconciler
// specs, ordered by name.
func Queries(cfg map[string]config.QueryConfig) ([]metricsource.Query, []reconcile.SignalSpec) {
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)

	queries := make([]metricsource.Query, 0, len(names))
	specs := make([]reconcile.SignalSpec, 0, len(names))
	for _, name := range names {
		q := cfg[name]
		signal := q.Signal
		if signal == "" {
			signal = name
		}
		queries = append(queries, metricsource.Query{Name: name, Expr: q.Expr, Timeout: q.Timeout})
		specs = append(specs, reconcile.SignalSpec{
			Query:    name,
			Signal:   signal,
			Scale:    reconcile.ParseScale(q.Scale),
			Presence: q.Presence,
		})
	}
	return queries, specs
}

// Windows converts the liveness config, falling back to defaults for
// unset durations.
func Windows(c config.LivenessConfig) liveness.Windows {
	w := liveness.DefaultWindows()
	if c.Window > 0 {
		w.Liveness = c.Window
	}
	if c.Starvation > 0 {
		w.Starvation = c.Starvation
	}
	if c.Idle > 0 {
		w.Idle = c.Idle
	}
	if c.Warning > 0 {
		w.Warning = c.Warning
	}
	if c.Critical > 0 {
		w.Critical = c.Critical
	}
	if c.MinGrowth > 0 {
		w.MinGrowth = c.MinGrowth
	}
	return w
}

// NewFromConfig builds the three views over d and an engine that
// schedules them.
func NewFromConfig(cfg *config.Config, d *Deps, log logger.Logger) *Engine {
	hub := NewHub()
	filter := agents.Filter{Site: cfg.Agents.Site, Node: cfg.Agents.Node}
	windows := Windows(cfg.Liveness)

	gpuQueries, gpuSpecs := Queries(cfg.Queries)
	agentQueries, agentSpecs := Queries(cfg.AgentQueries)

	gpus := NewGPUView(GPUViewOptions{
		Source:      d.Metrics,
		Queries:     gpuQueries,
		Specs:       gpuSpecs,
		Topology:    d.Topology,
		Filter:      filter,
		HistorySize: cfg.History.GPUSize,
		PruneAfter:  cfg.History.PruneAfter,
		Hub:         hub,
		Recorder:    d.Recorder,
		Logger:      log,
	})
	agentView := NewAgentView(AgentViewOptions{
		Agents:      d.Agents,
		Bottleneck:  d.Bottleneck,
		Metrics:     d.Metrics,
		Queries:     agentQueries,
		Specs:       agentSpecs,
		Topology:    d.Topology,
		Filter:      filter,
		Windows:     windows,
		HistorySize: cfg.History.AgentSize,
		PruneAfter:  cfg.History.PruneAfter,
		Leaderboard: cfg.Views.LeaderboardSize,
		Hub:         hub,
		Recorder:    d.Recorder,
		Logger:      log,
	})
	system := NewSystemView(SystemViewOptions{
		Local:       d.Local,
		Agents:      d.Agents,
		Bottleneck:  d.Bottleneck,
		Filter:      filter,
		Windows:     windows,
		HistorySize: cfg.History.AgentSize,
		Hub:         hub,
		Recorder:    d.Recorder,
		Logger:      log,
	})

	e := NewEngine(hub, d.Recorder, log,
		Schedule{View: gpus, Interval: cfg.Views.GPUInterval},
		Schedule{View: agentView, Interval: cfg.Views.AgentsInterval},
		Schedule{View: system, Interval: cfg.Views.AggregateInterval},
	)
	e.filter = filter
	return e
}

// NewLogRelay builds the live log relay for the configured transport.
func NewLogRelay(cfg config.LogsConfig, rec *observability.Recorder, log logger.Logger) (*logrelay.Relay, error) {
	var dialer logrelay.Dialer
	switch cfg.Transport {
	case config.TransportNATS:
		dialer = logrelay.NATSDialer{URL: cfg.URL, Subject: cfg.Subject}
	case config.TransportWebSocket, "":
		dialer = logrelay.WebSocketDialer{BaseURL: cfg.URL}
	default:
		return nil, errors.New(errors.ErrConfig,
			"Unknown logs.transport "+cfg.Transport,
			"Use websocket or nats")
	}

	opts := []logrelay.Option{logrelay.WithBuffer(cfg.Buffer), logrelay.WithLogger(logger.OrDefault(log).With("logs"))}
	if rec != nil {
		opts = append(opts, logrelay.WithObserver(rec))
	}
	return logrelay.New(dialer, opts...), nil
}
