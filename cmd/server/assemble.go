package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkeye/vlink/internal/domain"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <session>",
	Short: "Assemble a recording for a session now",
	Long: "Runs the recording assembler synchronously. Every run produces a new " +
		"artifact; earlier recordings of the session are kept.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := build(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		rec, err := c.assembler.Assemble(ctx, domain.SessionID(args[0]))
		if err != nil {
			return err
		}

		// no queue consumer runs here, so probe the artifact inline
		if info, err := c.prober.Probe(ctx, rec.Path); err == nil && info.DurationMS != nil {
			rec.DurationMS = info.DurationMS
			_ = c.store.UpdateRecordingDuration(ctx, rec.ID, *info.DurationMS)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}
