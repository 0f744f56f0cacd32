package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/config"
	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/registry"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// validFormats defines the allowed discover output formats.
var validFormats = []string{"json", "yaml"}

// discoverOptions holds the discover flags.
type discoverOptions struct {
	RegistryURL string
	Format      string
}

// newDiscoverCommand fetches every collection once and prints the result.
func newDiscoverCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &discoverOptions{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Fetch all resources from a registry once and print them",
		Long: `Fetch nodes, devices, senders, receivers and flows from an NMOS
Query API, following pagination, and print the snapshot.

The registry defaults to registry.query_url from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd.Context(), rootOpts, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.RegistryURL, "registry", "", "Query API base, e.g. http://registry:8870/x-nmos/query/v1.3")
	cmd.Flags().StringVar(&opts.Format, "format", "json", "output format (json|yaml)")

	return cmd
}

func runDiscover(ctx context.Context, rootOpts *rootOptions, opts *discoverOptions, out io.Writer) error {
	if !isValidFormat(opts.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
	}

	cfg, err := discoverConfig(rootOpts, opts)
	if err != nil {
		return err
	}
	if cfg.Registry.QueryURL == "" {
		return fmt.Errorf("%w: --registry or registry.query_url is required", nmos.ErrInvalidArgument)
	}

	client := registry.NewClient(nmos.NewClient(nmos.WithTimeout(cfg.RegistryTimeout())))
	snap, err := fetchSnapshot(ctx, client, cfg.Registry.QueryURL)
	if err != nil {
		return err
	}

	return writeSnapshot(out, opts.Format, snap)
}

// discoverConfig starts from defaults when only --registry is given and
// loads the config file otherwise. The --registry flag always wins.
func discoverConfig(rootOpts *rootOptions, opts *discoverOptions) (*config.Config, error) {
	cfg := config.Default()
	if rootOpts.ConfigPath != "" || opts.RegistryURL == "" {
		loaded, err := config.Load(getConfigPath(rootOpts.ConfigPath))
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if opts.RegistryURL != "" {
		cfg.Registry.QueryURL = strings.TrimSpace(opts.RegistryURL)
	}
	return cfg, nil
}

// fetchSnapshot reads all five collections concurrently.
func fetchSnapshot(ctx context.Context, client *registry.Client, base string) (resource.Snapshot, error) {
	cols := resource.Collections()
	lists := make([][]resource.Resource, len(cols))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range cols {
		g.Go(func() error {
			list, err := client.FetchCollection(gctx, base, c)
			if err != nil {
				return err
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resource.Snapshot{}, err
	}

	var snap resource.Snapshot
	for i, c := range cols {
		snap.Set(c, lists[i])
	}
	return snap, nil
}

func writeSnapshot(w io.Writer, format string, snap resource.Snapshot) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		return nil
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}
