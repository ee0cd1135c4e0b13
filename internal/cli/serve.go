package cli

import (
	"context"

	"github.com/loopfactory/fleetdash/internal/fleet"
	"github.com/loopfactory/fleetdash/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func serveCommand(ctx context.Context, addr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Serve.Addr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps, err := fleet.BuildDeps(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	engine := fleet.NewFromConfig(cfg, deps, log)
	engine.Start(ctx)
	defer engine.Stop()

	return server.New(engine, reg, log.With("server")).Run(ctx, addr)
}
