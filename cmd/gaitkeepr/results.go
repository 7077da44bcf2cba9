package main

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func resultCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Fetch the current result of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
			spin.Suffix = " Fetching result..."
			if !asJSON {
				spin.Start()
			}
			res, err := g.client().FetchResult(cmd.Context(), args[0])
			spin.Stop()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, res)
			}
			renderResult(out, g.ui, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func healthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := g.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			if !h.OK {
				return fmt.Errorf("backend at %s reported not ok", g.baseURL)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Backend healthy at %s\n", g.ui.ok("[OK]"), g.baseURL)
			return nil
		},
	}
}
