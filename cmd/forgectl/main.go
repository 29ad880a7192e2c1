package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/YoubetDao/MCPForge-Backend-sub000/pkg/api/client"
)

var buildVersion = "dev"

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

// globalOptions are shared by every subcommand.
type globalOptions struct {
	api     string
	token   string
	output  string
	timeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "forgectl",
		Short:         "Manage MCP servers and catalog cards on an MCPForge API",
		Version:       strings.TrimSpace(buildVersion),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.api, "api", "", "API base URL (env FORGE_API_URL)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "access token (env FORGE_TOKEN)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format (table|json)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		switch opts.output {
		case "table", "json":
			return nil
		default:
			return fmt.Errorf("unsupported output format %q", opts.output)
		}
	}

	root.AddCommand(
		newLoginCommand(opts),
		newListCommand(opts),
		newGetCommand(opts),
		newCreateCommand(opts),
		newDeleteCommand(opts),
		newWaitCommand(opts),
		newCardsCommand(opts),
		newHealthCommand(opts),
	)
	return root
}

// resolve merges flags, environment and the saved config file, in that order.
func (o *globalOptions) resolve() (cliConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, err
	}
	if env := strings.TrimSpace(os.Getenv("FORGE_API_URL")); env != "" {
		cfg.APIBaseURL = env
	}
	if env := strings.TrimSpace(os.Getenv("FORGE_TOKEN")); env != "" {
		cfg.AccessToken = env
	}
	if v := strings.TrimSpace(o.api); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(o.token); v != "" {
		cfg.AccessToken = v
	}
	return cfg, nil
}

func (o *globalOptions) client() (*apiclient.Client, error) {
	cfg, err := o.resolve()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("please login first using 'forgectl login'")
	}
	return apiclient.New(cfg.APIBaseURL, apiclient.WithToken(cfg.AccessToken))
}

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: apiclient.DefaultBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = apiclient.DefaultBaseURL
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv("FORGE_CONFIG")); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "mcpforge", "config.json"), nil
}
