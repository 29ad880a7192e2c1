package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/YoubetDao/MCPForge-Backend-sub000/pkg/api/client"
)

func newLoginCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			token := strings.TrimSpace(opts.token)
			if token == "" {
				token, err = promptToken(cmd)
				if err != nil {
					return err
				}
			}
			if token == "" {
				return errors.New("an access token is required")
			}
			cfg.AccessToken = token

			client, err := apiclient.New(cfg.APIBaseURL, apiclient.WithToken(token))
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if _, err := client.ListServers(ctx, nil, false); err != nil {
				return fmt.Errorf("verify token: %w", err)
			}
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "login successful")
			return nil
		},
	}
	return cmd
}

func promptToken(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Access token: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

func newListCommand(opts *globalOptions) *cobra.Command {
	var (
		selectors []string
		all       bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List MCP servers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parsePairs(selectors)
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			servers, err := client.ListServers(ctx, filters, all)
			if err != nil {
				return err
			}
			return printServers(cmd.OutOrStdout(), opts.output, servers)
		},
	}
	cmd.Flags().StringArrayVarP(&selectors, "label", "l", nil, "label filter key=value (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "list every server (admin only)")
	return cmd
}

func newGetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show a single MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			server, err := client.GetServer(ctx, args[0])
			if err != nil {
				return err
			}
			return printServers(cmd.OutOrStdout(), opts.output, []apiclient.MCPServer{server})
		},
	}
}

func newCreateCommand(opts *globalOptions) *cobra.Command {
	var (
		input  apiclient.CreateServerInput
		envs   []string
		labels []string
		wait   bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an MCP server from a container image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input.Image) == "" {
				return errors.New("--image is required")
			}
			var err error
			if input.Env, err = parsePairs(envs); err != nil {
				return err
			}
			if input.Labels, err = parsePairs(labels); err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			res, err := client.CreateServer(ctx, input, wait)
			if err != nil {
				return err
			}
			return printCreated(cmd.OutOrStdout(), opts.output, res)
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "server name prefix (defaults to the image name)")
	cmd.Flags().StringVar(&input.Image, "image", "", "container image")
	cmd.Flags().StringArrayVarP(&envs, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "label key=value (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the server is ready")
	return cmd
}

func newDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete an MCP server",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if err := client.DeleteServer(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mcp server %s deleted\n", args[0])
			return nil
		},
	}
}

func newWaitCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wait <name>",
		Short: "Block until an MCP server is ready and print its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			url, err := client.WaitServer(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{"name": args[0], "url": url})
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func newCardsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Browse and launch catalog cards",
	}
	cmd.AddCommand(
		newCardsListCommand(opts),
		newCardsGetCommand(opts),
		newCardsImportCommand(opts),
		newCardsCreateCommand(opts),
		newCardsLaunchCommand(opts),
	)
	return cmd
}

func newCardsListCommand(opts *globalOptions) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			cards, err := client.ListCards(ctx, limit, offset)
			if err != nil {
				return err
			}
			return printCards(cmd.OutOrStdout(), opts.output, cards)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of cards")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of cards to skip")
	return cmd
}

func newCardsGetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a catalog card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCardID(args[0])
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			card, err := client.GetCard(ctx, id)
			if err != nil {
				return err
			}
			return printCards(cmd.OutOrStdout(), opts.output, []apiclient.Card{card})
		},
	}
}

func newCardsImportCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <github-url>",
		Short: "Import a GitHub repository into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			// Imports run a remote analysis and take longer than plain requests.
			if opts.timeout < 2*time.Minute {
				opts.timeout = 2 * time.Minute
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			card, err := client.ImportCard(ctx, args[0])
			if err != nil {
				return err
			}
			return printCards(cmd.OutOrStdout(), opts.output, []apiclient.Card{card})
		},
	}
}

func newCardsCreateCommand(opts *globalOptions) *cobra.Command {
	var (
		input   apiclient.CreateCardInput
		price   float64
		configs []string
	)
	cmd := &cobra.Command{
		Use:   "create <github-url>",
		Short: "Add a catalog card from explicit fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.GitHubURL = args[0]
			if cmd.Flags().Changed("price") {
				input.Price = &price
			}
			pairs, err := parsePairs(configs)
			if err != nil {
				return err
			}
			if pairs != nil {
				if input.Configs, err = json.Marshal(pairs); err != nil {
					return err
				}
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			card, err := client.CreateCard(ctx, input)
			if err != nil {
				return err
			}
			return printCards(cmd.OutOrStdout(), opts.output, []apiclient.Card{card})
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "card name (defaults to the repository name)")
	cmd.Flags().StringVar(&input.DockerImage, "image", "", "docker image used when the card is launched")
	cmd.Flags().StringVar(&input.Description, "description", "", "short description")
	cmd.Flags().StringVar(&input.Overview, "overview", "", "long-form overview")
	cmd.Flags().Float64Var(&price, "price", 0, "price of the card")
	cmd.Flags().StringArrayVar(&configs, "config", nil, "configuration entry KEY=VALUE (repeatable)")
	return cmd
}

func newCardsLaunchCommand(opts *globalOptions) *cobra.Command {
	var (
		input apiclient.LaunchInput
		envs  []string
		wait  bool
	)
	cmd := &cobra.Command{
		Use:   "launch <id>",
		Short: "Start an MCP server from a catalog card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCardID(args[0])
			if err != nil {
				return err
			}
			if input.Env, err = parsePairs(envs); err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			res, err := client.LaunchCard(ctx, id, input, wait)
			if err != nil {
				return err
			}
			return printCreated(cmd.OutOrStdout(), opts.output, res)
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "server name prefix (defaults to the card name)")
	cmd.Flags().StringArrayVarP(&envs, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the server is ready")
	return cmd
}

func newHealthCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show API component health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve()
			if err != nil {
				return err
			}
			client, err := apiclient.New(cfg.APIBaseURL)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			health, err := client.Health(ctx)
			if err != nil {
				return err
			}
			if err := printHealth(cmd.OutOrStdout(), opts.output, health); err != nil {
				return err
			}
			if health.Status != "ok" {
				return fmt.Errorf("api is %s", health.Status)
			}
			return nil
		},
	}
}

// parsePairs turns repeated key=value flags into a map.
func parsePairs(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid pair %q, expected key=value", raw)
		}
		out[key] = value
	}
	return out, nil
}

func parseCardID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid card id %q", raw)
	}
	return id, nil
}
