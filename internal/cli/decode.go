package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/happyhackingspace/exon"
	"github.com/happyhackingspace/exon/internal/storage"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func (c *CLI) newDecodeCommand() *cobra.Command {
	var cfg exon.DecodeConfig
	var useLoss bool
	var output string

	cmd := &cobra.Command{
		Use:   "decode <problem>...",
		Short: "Decode the n best gene structures of one or more problems",
		Args:  cobra.MinimumNArgs(1),
		Example: `  # Best path of a problem file
  exon decode problem.yaml

  # Five best paths with reading-frame checks
  exon decode problem.yaml --nbest 5 --orf

  # Ignore the loss tensor carried by the problem
  exon decode problem.yaml --loss=false

  # Write results to a folder, one file per problem
  exon decode chr1.yaml chr2.yaml --output results/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.NoLoss = !useLoss
			if len(args) > 1 && output != "" && !strings.HasSuffix(output, string(filepath.Separator)) {
				if fi, err := os.Stat(output); err != nil || !fi.IsDir() {
					return fmt.Errorf("--output must be a folder when decoding %d problems", len(args))
				}
			}

			var bar *progressbar.ProgressBar
			if len(args) > 1 && !c.silent {
				bar = progressbar.NewOptions(len(args),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("decoding"),
					progressbar.OptionShowCount(),
				)
			}

			for _, path := range args {
				start := time.Now()
				p, err := exon.Load(path)
				if err != nil {
					return err
				}
				pred, err := p.Decode(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				slog.Debug("Decoded", "problem", path, "paths", len(pred.Paths), "loss", pred.WithLoss, "duration", time.Since(start))

				if err := writeResult("decode", path, output, len(args) > 1, pred.RunID, pred); err != nil {
					return err
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			if bar != nil {
				_ = bar.Finish()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.NBest, "nbest", 1, "Number of best paths to report")
	cmd.Flags().BoolVar(&cfg.UseORF, "orf", false, "Reject segments whose reading frame contains a stop codon")
	cmd.Flags().BoolVar(&useLoss, "loss", true, "Add the segment loss when the problem carries a reference and loss tensor")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write results to this file (or folder for several problems)")
	return cmd
}

// writeResult prints v as JSON or saves it, wrapped in a run envelope, to
// output. With several inputs output is a folder holding <input>.json.
// An empty runID gets a fresh one.
func writeResult(command, input, output string, many bool, runID string, v any) error {
	if output == "" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	dest := output
	if many {
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		dest = filepath.Join(output, base+".json")
	}
	run := storage.NewRun(command, input, v)
	if runID != "" {
		run.ID = runID
	}
	if err := storage.NewStorage("").SaveJSON(dest, run); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	slog.Info("Result saved", "path", dest)
	return nil
}
