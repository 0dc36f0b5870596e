package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/router"
)

type opener func(ctx context.Context, configPath string, verbose bool) (router.Store, func() error, error)

type cli struct {
	out        io.Writer
	open       opener
	configPath string
	verbose    bool
}

func newRootCommand(out io.Writer, open opener) *cobra.Command {
	c := &cli{out: out, open: open}

	root := &cobra.Command{
		Use:           "cartosql",
		Short:         "Query and edit CARTO tables as GeoJSON records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log statements to stderr")

	root.AddCommand(
		c.findCommand(),
		c.getCommand(),
		c.createCommand(),
		c.updateCommand(),
		c.deleteCommand(),
	)
	return root
}

// with opens a store for one command and prints its result as JSON
func (c *cli) with(cmd *cobra.Command, fn func(ctx context.Context, s router.Store) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeFn, err := c.open(ctx, c.configPath, c.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	v, err := fn(ctx, store)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) findCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "find <type> [column=value...]",
		Short: "List records, optionally filtered by column equality",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilterArgs(args[1:])
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, s router.Store) (any, error) {
				if len(filter) == 0 {
					return s.FindAll(ctx, args[0])
				}
				return s.FindQuery(ctx, args[0], filter)
			})
		},
	}
}

func (c *cli) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Fetch one record by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, s router.Store) (any, error) {
				return s.FindByID(ctx, args[0], id)
			})
		},
	}
}

type recordFlags struct {
	props    string
	lon, lat float64
}

func (f *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.props, "props", "{}", "record properties as a JSON object")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "point longitude")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "point latitude")
}

func (f *recordFlags) record(cmd *cobra.Command) (model.Record, error) {
	var rec model.Record
	dec := json.NewDecoder(strings.NewReader(f.props))
	dec.UseNumber()
	if err := dec.Decode(&rec.Properties); err != nil {
		return model.Record{}, fmt.Errorf("--props: %w", err)
	}
	lonSet, latSet := cmd.Flags().Changed("lon"), cmd.Flags().Changed("lat")
	if lonSet != latSet {
		return model.Record{}, errors.New("--lon and --lat must be given together")
	}
	if lonSet {
		rec.Geometry = model.NewPoint(f.lon, f.lat)
	}
	return rec, nil
}

func (c *cli) createCommand() *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Insert a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := f.record(cmd)
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, s router.Store) (any, error) {
				return s.CreateRecord(ctx, args[0], rec)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func (c *cli) updateCommand() *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "update <type> <id>",
		Short: "Overwrite the given columns of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			rec, err := f.record(cmd)
			if err != nil {
				return err
			}
			rec.ID = id
			return c.with(cmd, func(ctx context.Context, s router.Store) (any, error) {
				return s.UpdateRecord(ctx, args[0], rec)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, s router.Store) (any, error) {
				return s.DeleteRecord(ctx, args[0], model.Record{ID: id})
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

func parseFilterArgs(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("filter %q: want column=value", a)
		}
		if !router.IsIdentifier(k) {
			return nil, fmt.Errorf("filter %q: invalid column name %q", a, k)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("filter column %q given twice", k)
		}
		out[k] = v
	}
	return out, nil
}
