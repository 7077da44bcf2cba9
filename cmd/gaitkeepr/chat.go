package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/pkg/chat"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func chatCmd(g *globals) *cobra.Command {
	var (
		message    string
		withResult string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask the coach about pain and exercises",
		Example: "gaitkeepr chat --message \"my left shin hurts\"\n" +
			"gaitkeepr chat --with-result 5b0f3c1e-...",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			c := g.client()
			session := chat.NewSession(c)

			if withResult != "" {
				res, err := c.FetchResult(ctx, withResult)
				if err != nil {
					return err
				}
				session.SetRunContext(chat.RunContextFromResult(res))
			}

			if strings.TrimSpace(message) != "" {
				reply, err := session.Send(ctx, message)
				if err != nil {
					return err
				}
				renderMessage(out, g.ui, *reply)
				return nil
			}

			fmt.Fprintln(out, g.ui.dim(chat.Disclaimer))
			if withResult != "" {
				fmt.Fprintf(out, "%s Run context attached from job %s\n", g.ui.info("[INFO]"), withResult)
			}
			renderMessage(out, g.ui, session.Messages()[0])

			in := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, g.ui.info("You › "))
				if !in.Scan() {
					fmt.Fprintln(out)
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				switch line {
				case "":
					continue
				case "/quit", "/exit", "exit", "quit":
					return nil
				}

				spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
				spin.Suffix = " Thinking..."
				spin.Start()
				reply, err := session.Send(ctx, line)
				spin.Stop()
				if err != nil {
					// keep the loop alive; the message stays in the transcript
					fmt.Fprintln(out, g.ui.err("[ERROR]"), err.Error())
					continue
				}
				renderMessage(out, g.ui, *reply)
			}
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Send one message and exit")
	cmd.Flags().StringVar(&withResult, "with-result", "", "Attach the result of this job as run context")
	return cmd
}
