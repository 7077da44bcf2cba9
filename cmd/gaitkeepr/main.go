package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/osvaldoandrade/gaitkeepr/pkg/client"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// globals holds the connection settings resolved before every command.
type globals struct {
	baseURL     string
	token       string
	profileName string
	ui          *ui
}

func (g *globals) client() *client.Client {
	return client.New(g.baseURL, client.WithToken(g.token))
}

func main() {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	u := newUI()
	root := newRootCmd(u)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, u.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func newRootCmd(u *ui) *cobra.Command {
	g := &globals{
		baseURL:     getenv("GAITKEEPR_API_URL", client.DefaultBaseURL),
		token:       getenv("GAITKEEPR_TOKEN", ""),
		profileName: getenv("GAITKEEPR_PROFILE", ""),
		ui:          u,
	}

	root := &cobra.Command{
		Use:   "gaitkeepr",
		Short: "GaitKeepr CLI",
		Long:  "GaitKeepr CLI for running-form analysis and the coach chat.",
	}
	root.SetHelpTemplate(helpTemplate(u))
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.PersistentFlags().StringVar(&g.baseURL, "api-url", g.baseURL, "Base URL of the analysis backend")
	root.PersistentFlags().StringVar(&g.token, "token", g.token, "Bearer token")
	root.PersistentFlags().StringVar(&g.profileName, "profile", g.profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load cli config: %w", err)
		}
		active := resolveProfileName(g.profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("api-url") {
			g.baseURL = resolveBaseURL(os.Getenv("GAITKEEPR_API_URL"), prof)
		}
		if !flags.Changed("token") {
			g.token = firstNonEmpty(strings.TrimSpace(os.Getenv("GAITKEEPR_TOKEN")), prof.Token)
		}
		if g.profileName == "" {
			g.profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(g))
	root.AddCommand(configCmd(g))
	root.AddCommand(analyzeCmd(g))
	root.AddCommand(resultCmd(g))
	root.AddCommand(chatCmd(g))
	root.AddCommand(healthCmd(g))
	return root
}

// resolveBaseURL applies env > profile > default; the flag is handled by the
// caller.
func resolveBaseURL(env string, prof profile) string {
	return strings.TrimRight(firstNonEmpty(strings.TrimSpace(env), prof.BaseURL, client.DefaultBaseURL), "/")
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func helpTemplate(u *ui) string {
	title := u.title("gaitkeepr")
	return fmt.Sprintf(`%s - running-form coach CLI

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  gaitkeepr init
  gaitkeepr analyze ./long-run.mp4
  gaitkeepr analyze ./tempo.mov --policy exponential --max-attempts 60
  gaitkeepr result 5b0f3c1e-...
  gaitkeepr chat --with-result 5b0f3c1e-...

`, title, configPath())
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
