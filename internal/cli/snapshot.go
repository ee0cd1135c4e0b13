package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/fleet"
	"github.com/loopfactory/fleetdash/internal/ui"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type snapshotOptions struct {
	Output  string
	Views   string
	Timeout string
}

// snapshotReport is the json/yaml document printed by `fleetdash snapshot`.
type snapshotReport struct {
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
	Degraded    bool             `json:"degraded" yaml:"degraded"`
	Views       []fleet.Snapshot `json:"views" yaml:"views"`
}

func snapshotCommand(ctx context.Context, w io.Writer, opts snapshotOptions) error {
	format, err := ParseOutputFormat(opts.Output)
	if err != nil {
		return err
	}
	report, err := runSnapshot(ctx, format, opts)
	if err != nil {
		if format == OutputJSON {
			_ = WriteJSONFromError(w, err, nil)
		}
		return err
	}
	return writeReport(w, format, report)
}

func runSnapshot(ctx context.Context, format string, opts snapshotOptions) (snapshotReport, error) {
	views, err := ParseViews(opts.Views)
	if err != nil {
		return snapshotReport{}, err
	}
	timeout, err := ParseTimeout(opts.Timeout)
	if err != nil {
		return snapshotReport{}, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return snapshotReport{}, err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return snapshotReport{}, err
	}

	deps, err := fleet.BuildDeps(ctx, cfg, nil, log)
	if err != nil {
		return snapshotReport{}, err
	}
	defer deps.Close()
	engine := fleet.NewFromConfig(cfg, deps, log)

	var spinner *ui.Spinner
	if format == OutputTable && term.IsTerminal(int(os.Stderr.Fd())) {
		spinner = ui.NewSpinner("Refreshing " + strings.Join(views, ", "))
		spinner.SetOutput(func(s string) { fmt.Fprint(os.Stderr, s) })
		spinner.Start()
	}
	refreshErr := engine.RefreshOnce(ctx, timeout, views...)
	if spinner != nil {
		spinner.Done(refreshErr)
	}
	if refreshErr != nil {
		log.Warn("%s", errors.NewFailure("snapshot", refreshErr).Message)
	}
	if ctx.Err() != nil {
		return snapshotReport{}, errors.WrapWithCode(ctx.Err(), errors.ErrCanceled, "Snapshot interrupted", "")
	}

	return collectReport(engine.Hub(), views, time.Now()), nil
}

// collectReport gathers the latest snapshot of each requested view. Views
// that never published are left out.
func collectReport(hub *fleet.Hub, views []string, now time.Time) snapshotReport {
	report := snapshotReport{GeneratedAt: now, Views: []fleet.Snapshot{}}
	for _, v := range views {
		s, ok := hub.Latest(v)
		if !ok {
			continue
		}
		report.Views = append(report.Views, s)
		if s.Degraded() {
			report.Degraded = true
		}
	}
	return report
}

func writeReport(w io.Writer, format string, report snapshotReport) error {
	switch format {
	case OutputJSON:
		return WriteJSONSuccess(w, report)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		for i, s := range report.Views {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprint(w, ui.RenderSnapshot(s, report.GeneratedAt))
		}
		return nil
	}
}
