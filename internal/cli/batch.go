package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/happyhackingspace/exon/batch"
	"github.com/happyhackingspace/exon/internal/storage"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type sequenceScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

func (c *CLI) newBatchCommand() *cobra.Command {
	cfg := batch.DefaultConfig()
	var cacheMB int
	var output string

	cmd := &cobra.Command{
		Use:   "batch <model> <sequences>",
		Short: "Score equal-length sequences against a weighted-degree model",
		Args:  cobra.ExactArgs(2),
		Example: `  exon batch splice.yaml candidates.fa
  exon batch splice.yaml candidates.txt --threads 8 --factor -1 -o scores.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.NewStorage("")
			m, err := st.LoadBatchModel(args[0])
			if err != nil {
				return err
			}
			records, err := st.LoadSequences(args[1])
			if err != nil {
				return err
			}
			seqs := make([]string, len(records))
			for i, r := range records {
				seqs[i] = string(r.Sequence)
			}

			cfg.CacheBytes = cacheMB << 20
			s, err := batch.NewScorer(m, cfg)
			if err != nil {
				return err
			}
			if !c.silent {
				bar := progressbar.NewOptions(m.Length(),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("scoring"),
					progressbar.OptionShowCount(),
				)
				s.SetProgress(func(done, total int) {
					_ = bar.Set(done)
					if done == total {
						_ = bar.Finish()
					}
				})
			}

			slog.Info("Scoring", "sequences", len(seqs), "length", m.Length(), "threads", cfg.Threads)
			start := time.Now()
			scores, err := s.Score(cmd.Context(), seqs)
			if errors.Is(err, context.Canceled) {
				slog.Warn("Scoring interrupted, scores are partial")
			} else if err != nil {
				return err
			}
			slog.Debug("Scoring completed", "duration", time.Since(start))

			out := make([]sequenceScore, len(records))
			for i, r := range records {
				out[i] = sequenceScore{ID: r.ID, Score: scores[i]}
			}
			if werr := writeResult("batch", args[1], output, false, "", out); werr != nil {
				return werr
			}
			if err != nil {
				return fmt.Errorf("batch: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.Threads, "threads", cfg.Threads, "Number of scoring goroutines")
	cmd.Flags().Float64Var(&cfg.Factor, "factor", cfg.Factor, "Scale applied to every score")
	cmd.Flags().IntVar(&cacheMB, "cache", 0, "Score cache size in MB (0 disables it)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write scores to this file")
	return cmd
}
