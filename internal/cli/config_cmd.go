package cli

import (
	"io"

	"github.com/loopfactory/fleetdash/internal/config"
)

func configShowCommand(w io.Writer) error {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return err
	}
	out, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
