package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/fleet"
)

// Output formats accepted by -o.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// ParseOutputFormat normalizes an -o value. Empty means table.
func ParseOutputFormat(flag string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(flag)); f {
	case "":
		return OutputTable, nil
	case OutputTable, OutputJSON, OutputYAML:
		return f, nil
	default:
		return "", errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' isn't an output format", flag),
			"Use table, json, or yaml.")
	}
}

// ParseTimeout parses a timeout flag into a duration.
// Returns zero duration if the flag is empty.
func ParseTimeout(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid timeout", flag),
			"Try something like 5s, 2m, or 500ms.")
	}
	if duration < 0 {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' is negative", flag),
			"Use a positive duration like 10s.")
	}
	return duration, nil
}

// ParseViews splits a comma-separated --views value. Empty means every view.
func ParseViews(flag string) ([]string, error) {
	if strings.TrimSpace(flag) == "" {
		return append([]string(nil), fleet.ViewNames...), nil
	}

	var views []string
	seen := make(map[string]bool)
	for _, v := range strings.Split(flag, ",") {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		if !knownView(v) {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("Unknown view '%s'", v),
				"Views are: "+strings.Join(fleet.ViewNames, ", "))
		}
		seen[v] = true
		views = append(views, v)
	}
	return views, nil
}

func knownView(v string) bool {
	for _, name := range fleet.ViewNames {
		if name == v {
			return true
		}
	}
	return false
}
