package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/loopfactory/fleetdash/internal/config"
	"github.com/loopfactory/fleetdash/internal/fleet"
	"github.com/loopfactory/fleetdash/internal/monitor"
	"github.com/loopfactory/fleetdash/internal/ui"
	"golang.org/x/term"
)

func watchCommand(ctx context.Context, plain bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	interactive := !plain && term.IsTerminal(int(os.Stdout.Fd()))
	logCfg := cfg.Log
	if interactive && (logCfg.Output == "" || logCfg.Output == "stderr") {
		// The dashboard owns the terminal.
		logCfg.Output = "discard"
	}
	log, err := newLogger(logCfg)
	if err != nil {
		return err
	}

	deps, err := fleet.BuildDeps(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	engine := fleet.NewFromConfig(cfg, deps, log)
	engine.Start(ctx)
	defer engine.Stop()

	if !interactive {
		return followSnapshots(ctx, os.Stdout, engine.Hub(), time.Now)
	}
	return runDashboard(ctx, cfg, deps, engine)
}

func runDashboard(ctx context.Context, cfg *config.Config, deps *fleet.Deps, engine *fleet.Engine) error {
	relay, err := fleet.NewLogRelay(cfg.Logs, deps.Recorder, nil)
	if err != nil {
		return err
	}
	defer relay.Close()

	model := monitor.NewModel(monitor.Options{
		Hub:       engine.Hub(),
		Refresher: engine,
		Relay:     relay,
		Context:   ctx,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}

// followSnapshots prints every snapshot published on hub until ctx is done
// or the hub closes.
func followSnapshots(ctx context.Context, w io.Writer, hub *fleet.Hub, now func() time.Time) error {
	snaps, unsubscribe := hub.Subscribe(0)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-snaps:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintln(w, ui.RenderSnapshot(s, now())); err != nil {
				return err
			}
		}
	}
}
