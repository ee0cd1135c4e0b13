package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/loopfactory/fleetdash/internal/agents"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/fleet"
	"github.com/loopfactory/fleetdash/internal/logrelay"
	"golang.org/x/term"
)

func logsCommand(ctx context.Context, w io.Writer, agentID string, backlog int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	if agentID == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New(errors.ErrConfig,
				"No agent id given",
				"Pass one: fleetdash logs <agent-id>")
		}
		deps, err := fleet.BuildDeps(ctx, cfg, nil, log)
		if err != nil {
			return err
		}
		list, err := deps.Agents.Agents(ctx, agents.Filter{Site: cfg.Agents.Site, Node: cfg.Agents.Node})
		deps.Close()
		if err != nil {
			return err
		}
		agentID, err = pickAgent(list)
		if err != nil {
			return err
		}
	}

	relay, err := fleet.NewLogRelay(cfg.Logs, nil, log)
	if err != nil {
		return err
	}
	defer relay.Close()

	relay.Select(ctx, agentID)
	return followLogs(ctx, w, relay, backlog)
}

// pickAgent asks the user to choose one of list.
func pickAgent(list []agents.Agent) (string, error) {
	options := agentOptions(list)
	if len(options) == 0 {
		return "", errors.New(errors.ErrSource,
			"No agents to follow",
			"Check agents.url and the site/node filter")
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Follow logs of").
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrCanceled, "No agent selected", "")
	}
	return selected, nil
}

// agentOptions lists agents by node, then label.
func agentOptions(list []agents.Agent) []huh.Option[string] {
	sorted := append([]agents.Agent(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Node() != sorted[j].Node() {
			return sorted[i].Node() < sorted[j].Node()
		}
		return strings.ToLower(sorted[i].Label()) < strings.ToLower(sorted[j].Label())
	})

	options := make([]huh.Option[string], 0, len(sorted))
	for _, a := range sorted {
		label := fmt.Sprintf("%s (%s)", a.Label(), a.Status)
		if node := a.Node(); node != "" {
			label = node + " / " + label
		}
		options = append(options, huh.NewOption(label, a.ID))
	}
	return options
}

// lineSource is the part of *logrelay.Relay that followLogs reads.
type lineSource interface {
	Since(n uint64) ([]string, uint64)
	State() (logrelay.State, error)
	Updates() <-chan struct{}
}

// followLogs writes lines as they arrive until ctx is done or the stream
// fails. backlog limits how many already-buffered lines are printed first;
// a negative backlog prints all of them.
func followLogs(ctx context.Context, w io.Writer, src lineSource, backlog int) error {
	_, seq := src.Since(0)
	if backlog < 0 || uint64(backlog) > seq {
		seq = 0
	} else {
		seq -= uint64(backlog)
	}

	for {
		lines, next := src.Since(seq)
		for _, l := range lines {
			if _, err := fmt.Fprintln(w, l); err != nil {
				return err
			}
		}
		seq = next

		state, err := src.State()
		switch state {
		case logrelay.StateError:
			return err
		case logrelay.StateClosed:
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-src.Updates():
		}
	}
}
