package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/dotsetgreg/repcue/pkg/config"
	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/dotsetgreg/repcue/pkg/matcher"
	"github.com/dotsetgreg/repcue/pkg/providers"
	"github.com/dotsetgreg/repcue/pkg/store"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	debug      bool
}

func (g *globalOptions) load() (*config.Config, error) {
	if g.debug {
		logger.SetLevel(logger.DEBUG)
	}
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", g.configPath, err)
	}
	return cfg, nil
}

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "repcue",
		Short: "Text check-in workout preference engine with HTTP and Discord gateways",
		Long: strings.TrimSpace(`repcue turns short check-in texts from members of a training session into
structured workout preferences.

Use CLI commands to onboard, try conversations locally, run the gateway, and
inspect or seed the exercise catalog.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd)
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Path to config.json")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newOnboardCommand(opts))
	root.AddCommand(newChatCommand(opts))
	root.AddCommand(newGatewayCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newCatalogCommand(opts))
	root.AddCommand(newVersionCommand())

	return root
}

func printVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(out, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(out, "  Go: %s\n", goVer)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  repcue version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd)
			return nil
		},
	}
}

func newOnboardCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "onboard",
		Short:   "Write a default config and an editable exercise catalog",
		Example: "  repcue onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				fmt.Fprintf(out, "Config already exists at %s (use --force to overwrite)\n", opts.configPath)
			} else {
				if err := config.SaveConfig(opts.configPath, config.DefaultConfig()); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				fmt.Fprintf(out, "✓ Config written to %s\n", opts.configPath)
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			catalogPath := cfg.CatalogPath()
			if _, err := os.Stat(catalogPath); err == nil && !force {
				fmt.Fprintf(out, "Catalog already exists at %s\n", catalogPath)
				return nil
			}
			if err := writeCatalogFile(catalogPath, catalog.DefaultEntries()); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Catalog written to %s\n", catalogPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	return cmd
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, store, catalog, and provider readiness",
		Example: "  repcue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			mark := func(ok bool) string {
				if ok {
					return "✓"
				}
				return "✗"
			}
			exists := func(path string) bool {
				_, err := os.Stat(path)
				return err == nil
			}

			fmt.Fprintf(out, "%s Status\n", appName)
			fmt.Fprintf(out, "Version: %s\n\n", formatVersion())
			fmt.Fprintln(out, "Config:", opts.configPath, mark(exists(opts.configPath)))
			fmt.Fprintln(out, "Store:", cfg.StorePath(), mark(exists(cfg.StorePath())))
			catalogLabel := "builtin"
			if exists(cfg.CatalogPath()) {
				catalogLabel = cfg.CatalogPath()
			}
			fmt.Fprintln(out, "Catalog:", catalogLabel)
			fmt.Fprintf(out, "Provider: %s (%s) %s\n", providers.ActiveProviderName(cfg), cfg.Engine.Model,
				mark(cfg.Engine.SemanticEnabled && providers.ProviderConfigured(cfg)))
			fmt.Fprintln(out, "Discord:", mark(cfg.Channels.Discord.Enabled && strings.TrimSpace(cfg.Channels.Discord.Token) != ""))
			fmt.Fprintf(out, "Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
			return nil
		},
	}
}

func newCatalogCommand(opts *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect, validate, and seed the exercise catalog",
	}

	root.AddCommand(&cobra.Command{
		Use:     "list",
		Short:   "List the exercises the engine matches against",
		Example: "  repcue catalog list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			entries, _, err := loadCatalogEntries(cfg.CatalogPath())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tPATTERN\tEQUIPMENT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Type, e.MovementPattern, strings.Join(e.Equipment, ","))
			}
			return tw.Flush()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "validate <file>",
		Short:   "Validate a catalog YAML file",
		Example: "  repcue catalog validate ~/.repcue/catalog.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d exercises\n", args[0], len(entries))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "seed",
		Short:   "Replace the catalog table in the state store",
		Long:    "Write the catalog file (or the built-in catalog) into the SQLite store that the gateway reads from.",
		Example: "  repcue catalog seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			entries, _, err := loadCatalogEntries(cfg.CatalogPath())
			if err != nil {
				return err
			}
			sq, err := store.NewSQLiteStore(cfg.StorePath())
			if err != nil {
				return err
			}
			defer sq.Close()
			if err := sq.ReplaceCatalog(cmd.Context(), entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Seeded %d exercises into %s\n", len(entries), cfg.StorePath())
			return nil
		},
	})

	var avoid bool
	match := &cobra.Command{
		Use:     "match <phrase>",
		Short:   "Show how a phrase resolves against the catalog",
		Example: "  repcue catalog match \"heavy squats\"\n  repcue catalog match --avoid burpees",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			intent := matcher.IntentInclude
			if avoid {
				intent = matcher.IntentAvoid
			}
			res := rt.matcher.Match(cmd.Context(), strings.Join(args, " "), intent)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "method: %s\n", res.Method)
			if res.Reasoning != "" {
				fmt.Fprintf(out, "reasoning: %s\n", res.Reasoning)
			}
			for i, e := range res.Candidates {
				fmt.Fprintf(out, "%d. %s (%s)\n", i+1, e.Name, e.ID)
			}
			return nil
		},
	}
	match.Flags().BoolVar(&avoid, "avoid", false, "Match with avoid intent")
	root.AddCommand(match)

	return root
}

func writeCatalogFile(path string, entries []catalog.Entry) error {
	data, err := catalog.Marshal(entries)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
