package cli

import (
	"fmt"
	"log/slog"

	"github.com/happyhackingspace/exon/dynprog"
	"github.com/happyhackingspace/exon/internal/storage"
	"github.com/spf13/cobra"
)

func (c *CLI) newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <problem>...",
		Short:   "Check problem files without decoding",
		Args:    cobra.MinimumNArgs(1),
		Example: `  exon validate problem.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.NewStorage("")
			failed := 0
			for _, path := range args {
				if err := validateProblem(st, path); err != nil {
					fmt.Printf("%s: %v\n", path, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d problems invalid", failed, len(args))
			}
			return nil
		},
	}
}

func validateProblem(st *storage.Storage, path string) error {
	p, err := st.LoadProblem(path)
	if err != nil {
		return err
	}
	b, err := p.Build()
	if err != nil {
		return err
	}
	d, err := dynprog.NewDecoder(b.Model, b.Input)
	if err != nil {
		return err
	}
	if err := d.Check(dynprog.Options{NBest: 1, WithLoss: b.Input.Loss != nil}); err != nil {
		return err
	}
	if b.Model.ORF != nil {
		if err := d.Check(dynprog.Options{NBest: 1, UseORF: true}); err != nil {
			slog.Warn("Problem cannot be decoded with --orf", "problem", path, "error", err)
		}
	}
	fmt.Printf("%s: ok (%d states, %d transitions, %d positions, lookback %d)\n",
		path, b.Model.NumStates(), b.Model.Graph.NumEdges(), b.Input.SeqLen(), d.LookBack())
	return nil
}
