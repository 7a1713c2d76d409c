package cli

import (
	"fmt"
	"log/slog"

	"github.com/happyhackingspace/exon"
	"github.com/happyhackingspace/exon/internal/storage"
	"github.com/spf13/cobra"
)

func (c *CLI) newDerivCommand() *cobra.Command {
	var resultPath string
	var rank int
	var output string

	cmd := &cobra.Command{
		Use:   "deriv <problem>",
		Short: "Compute usage counts and penalty derivatives along a decoded path",
		Args:  cobra.ExactArgs(1),
		Example: `  # Gradient of the best path, decoding first
  exon deriv problem.yaml

  # Gradient of the third path of an earlier decode
  exon decode problem.yaml --nbest 5 -o run.json
  exon deriv problem.yaml --path run.json --rank 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rank < 0 {
				return fmt.Errorf("--rank must be >= 0")
			}
			p, err := exon.Load(args[0])
			if err != nil {
				return err
			}

			var pred exon.Prediction
			if resultPath != "" {
				run, err := storage.NewStorage("").LoadRun(resultPath, &pred)
				if err != nil {
					return err
				}
				slog.Debug("Loaded decode result", "run", run.ID, "created", run.Created, "paths", len(pred.Paths))
			} else {
				decoded, err := p.Decode(cmd.Context(), exon.DecodeConfig{NBest: rank + 1})
				if err != nil {
					return err
				}
				pred = *decoded
			}
			if rank >= len(pred.Paths) {
				return fmt.Errorf("rank %d out of range, result holds %d paths", rank, len(pred.Paths))
			}

			g, err := p.Gradient(pred.Paths[rank])
			if err != nil {
				return err
			}
			slog.Info("Gradient computed", "rank", rank, "score", g.TotalScore, "loss", g.TotalLoss, "plifs", len(g.PLiFs))
			return writeResult("deriv", args[0], output, false, "", g)
		},
	}

	cmd.Flags().StringVar(&resultPath, "path", "", "Decode result file to take the path from (default: decode now)")
	cmd.Flags().IntVar(&rank, "rank", 0, "Rank of the path within the result")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the gradient to this file")
	return cmd
}
