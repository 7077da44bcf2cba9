package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/internal/backoff"
	"github.com/osvaldoandrade/gaitkeepr/pkg/analysis"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func analyzeCmd(g *globals) *cobra.Command {
	var (
		interval    time.Duration
		maxInterval time.Duration
		maxAttempts int
		policy      string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:     "analyze <video>",
		Short:   "Upload a running video and wait for its score",
		Example: "gaitkeepr analyze ./long-run.mp4 --interval 2s",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := backoff.ParsePolicy(policy)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open video: %w", err)
			}
			defer f.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			opts := analysis.Options{
				MaxAttempts: maxAttempts,
				Interval:    interval,
				MaxInterval: maxInterval,
				Policy:      pol,
			}
			var view *progressView
			if !asJSON {
				view = newProgressView(out, g.ui)
				opts.Observer = view.observe
			}
			ctrl := analysis.NewController(g.client(), opts)
			res, err := ctrl.Run(ctx, &analysis.File{Name: filepath.Base(args[0]), Reader: f})
			if view != nil {
				view.close()
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					fmt.Fprintln(out, g.ui.warn("[WARN]"), "Analysis cancelled")
				}
				return err
			}

			if asJSON {
				return writeJSON(out, res)
			}
			renderResult(out, g.ui, res)
			if st := ctrl.State(); st.Phase == analysis.PhaseError {
				return errors.New(st.Message())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", analysis.DefaultInterval, "Delay between result polls")
	cmd.Flags().DurationVar(&maxInterval, "max-interval", 10*time.Second, "Upper bound for growing poll delays")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", analysis.DefaultMaxAttempts, "Poll attempts before giving up")
	cmd.Flags().StringVar(&policy, "policy", string(backoff.Fixed), "Poll delay policy: fixed|linear|exponential|exp_equal_jitter|exp_full_jitter")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final result as JSON")
	return cmd
}

// progressView shows a spinner while the upload runs and a bar over poll
// attempts afterwards. The controller calls observe from its own goroutine,
// one state at a time.
type progressView struct {
	w    io.Writer
	ui   *ui
	spin *spinner.Spinner
	bar  *progressbar.ProgressBar
}

func newProgressView(w io.Writer, u *ui) *progressView {
	return &progressView{w: w, ui: u}
}

func (v *progressView) observe(s analysis.State) {
	switch s.Phase {
	case analysis.PhaseSubmitting:
		if v.spin == nil {
			v.spin = spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(v.w))
			v.spin.Suffix = " Uploading video..."
			v.spin.Start()
		}
	case analysis.PhasePolling:
		v.stopSpinner()
		if v.bar == nil {
			fmt.Fprintf(v.w, "%s Job %s submitted\n", v.ui.info("[INFO]"), s.JobID)
			v.bar = progressbar.NewOptions(s.MaxAttempts,
				progressbar.OptionSetWriter(v.w),
				progressbar.OptionSetDescription(pollDescription(s)),
				progressbar.OptionSetWidth(18),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		v.bar.Describe(pollDescription(s))
		_ = v.bar.Set(s.Attempt)
	default:
		if s.Phase.Finished() {
			v.close()
			if s.Phase == analysis.PhaseDone {
				fmt.Fprintf(v.w, "%s Analysis complete\n", v.ui.ok("[OK]"))
			}
		}
	}
}

func (v *progressView) stopSpinner() {
	if v.spin != nil {
		v.spin.Stop()
		v.spin = nil
	}
}

func (v *progressView) close() {
	v.stopSpinner()
	if v.bar != nil {
		_ = v.bar.Finish()
		v.bar = nil
	}
}
