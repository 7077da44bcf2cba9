package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/osvaldoandrade/gaitkeepr/pkg/client"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type profile struct {
	BaseURL string `yaml:"baseUrl"`
	Token   string `yaml:"token,omitempty"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func initCmd(g *globals) *cobra.Command {
	var (
		baseURL  string
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(g.profileName, cfg)
			prof := cfg.Profiles[active]

			baseURL = firstNonEmpty(baseURL, prof.BaseURL, client.DefaultBaseURL)
			token := prof.Token
			if cmd.Flags().Changed("token") {
				token = g.token
			}

			if !noPrompt {
				reader := bufio.NewReader(cmd.InOrStdin())
				baseURL = prompt(reader, "Base URL", baseURL)
				if token == "" {
					v, err := promptSecret(reader, "Bearer token (optional)")
					if err != nil {
						return err
					}
					token = v
				}
			}

			prof.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
			prof.Token = strings.TrimSpace(token)

			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || cmd.Flags().Changed("profile") {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Initialized profile '%s' at %s\n", g.ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for the analysis backend")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func configCmd(g *globals) *cobra.Command {
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", g.ui.title("Profile:"), g.profileName)
			fmt.Fprintf(out, "%s %s\n", g.ui.title("Config: "), configPath())
			fmt.Fprintf(out, "%s %s\n", g.ui.title("API URL:"), g.baseURL)
			fmt.Fprintf(out, "%s %s\n", g.ui.title("Token:  "), maskToken(g.token))
			return nil
		},
	}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "CLI configuration",
	}
	cmd.AddCommand(show)
	return cmd
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("GAITKEEPR_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".gaitkeepr", "config.yaml")
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	// holds tokens
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("GAITKEEPR_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptSecret(r *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := readSecret(r)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// readSecret disables echo on a terminal and falls back to a plain line read
// when stdin is piped.
func readSecret(r *bufio.Reader) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := r.ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return []byte(strings.TrimSpace(line)), err
	}
	return term.ReadPassword(fd)
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}
