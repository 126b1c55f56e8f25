package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dkeye/vlink/internal/media"
	"github.com/dkeye/vlink/internal/probe"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Print the metadata extraction result for a media file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := probe.NewProber(media.ExecRunner{}, cfg.Probe.Binary, afero.NewOsFs())
		info, err := p.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}
