// Command vecdbctl is a small command-line front end over the vecdb
// library: create collections, insert and search vectors, and inspect
// what is stored, all against an on-disk database directory.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HessamLa/vecdb-hnsw/internal/vecdb"
)

func main() {
	loadFileConfig()

	var dbPath string
	root := &cobra.Command{
		Use:   "vecdbctl",
		Short: "Inspect and query an embedded HNSW vector database",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "database directory")

	root.AddCommand(
		newCreateCmd(&dbPath),
		newInsertCmd(&dbPath),
		newSearchCmd(&dbPath),
		newGetCmd(&dbPath),
		newDeleteCmd(&dbPath),
		newListCmd(&dbPath),
		newStatsCmd(&dbPath),
		newSaveCmd(&dbPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withRegistry opens the registry at *dbPath, runs fn, then saves and
// closes it. Close's own save error is never allowed to replace the
// error fn returned — both are reported via errors.Join, the Go
// analogue of the scoped-acquisition "auto-save on exit must not
// suppress the triggering error" requirement.
func withRegistry(dbPath *string, fn func(r *vecdb.Registry) error) error {
	r, err := vecdb.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("open database %q: %w", *dbPath, err)
	}
	fnErr := fn(r)
	closeErr := r.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("save on exit: %w", closeErr)
	}
	return errors.Join(fnErr, closeErr)
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func newCreateCmd(dbPath *string) *cobra.Command {
	var dim int
	var metricName string
	var m, efConstruction, efSearch int
	cmd := &cobra.Command{
		Use:   "create <collection>",
		Short: "Create a new, empty collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metric, ok := vecdb.ParseMetricName(metricName)
			if !ok {
				return fmt.Errorf("unknown metric %q (want l2, cosine, or dot)", metricName)
			}
			return withRegistry(dbPath, func(r *vecdb.Registry) error {
				_, err := r.CreateCollection(args[0], dim, metric, vecdb.HNSWParams{
					M: m, EfConstruction: efConstruction, EfSearch: efSearch,
				})
				if err != nil {
					return err
				}
				fmt.Printf("created collection %q (dim=%d, metric=%s)\n", args[0], dim, metricName)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&dim, "dim", 0, "vector dimension (required)")
	cmd.Flags().StringVar(&metricName, "metric", "l2", "distance metric: l2, cosine, or dot")
	cmd.Flags().IntVar(&m, "m", 0, "max neighbors per node (default 16)")
	cmd.Flags().IntVar(&efConstruction, "ef-construction", 0, "construction beam width (default 200)")
	cmd.Flags().IntVar(&efSearch, "ef-search", 0, "default search beam width (default 50)")
	cmd.MarkFlagRequired("dim")
	return cmd
}

func newInsertCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <collection> <user-id> <v1,v2,...>",
		Short: "Insert a vector under a user-chosen id",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[1], err)
			}
			vec, err := parseVector(args[2])
			if err != nil {
				return err
			}
			return withRegistry(dbPath, func(r *vecdb.Registry) error {
				c, err := r.GetCollection(args[0])
				if err != nil {
					return err
				}
				if err := c.Insert(userID, vec); err != nil {
					return err
				}
				fmt.Printf("inserted id %d into %q\n", userID, args[0])
				return nil
			})
		},
	}
}

func newSearchCmd(dbPath *string) *cobra.Command {
	var k, ef int
	cmd := &cobra.Command{
		Use:   "search <collection> <v1,v2,...>",
		Short: "Find the k nearest neighbors of a query vector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := parseVector(args[1])
			if err != nil {
				return err
			}
			return withRegistry(dbPath, func(r *vecdb.Registry) error {
				c, err := r.GetCollection(args[0])
				if err != nil {
					return err
				}
				results, err := c.Search(vec, k, ef)
				if err != nil {
					return err
				}
				for i, res := range results {
					fmt.Printf("%2d  id=%-8d  distance=%.6f\n", i+1, res.UserID, res.Distance)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&k, "k", 10, "number of neighbors to return")
	cmd.Flags().IntVar(&ef, "ef", 0, "override ef_search for this query (0 = collection default)")
	return cmd
}

func newGetCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <user-id>",
		Short: "Print the stored vector for a user id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[1], err)
			}
			return withRegistry(dbPath, func(r *vecdb.Registry) error {
				c, err := r.GetCollection(args[0])
				if err != nil {
					return err
				}
				v, ok := c.Get(userID)
				if !ok {
					fmt.Printf("id %d not found\n", userID)
					return nil
				}
				strs := make([]string, len(v))
				for i, f := range v {
					strs[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
				}
				fmt.Println(strings.Join(strs, ","))
				return nil
			})
		},
	}
}

func newDeleteCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <user-id>",
		Short: "Delete a vector by user id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[1], err)
			}
			return withRegistry(dbPath, func(r *vecdb.Registry) error {
				c, err := r.GetCollection(args[0])
				if err != nil {
					return err
				}
				ok, err := c.Delete(userID)
				if err != nil {
					return err
				}
				if ok {
					fmt.Printf("deleted id %d from %q\n", userID, args[0])
				} else {
					fmt.Printf("id %d not found in %q\n", userID, args[0])
				}
				return nil
			})
		},
	}
}

func newListCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(dbPath, func(r *vecdb.Registry) error {
				for _, name := range r.ListCollections() {
					fmt.Println(name)
				}
				return nil
			})
		},
	}
}

func newStatsCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <collection>",
		Short: "Show a collection's dimension, metric, and size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(dbPath, func(r *vecdb.Registry) error {
				c, err := r.GetCollection(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("name:      %s\n", c.Name())
				fmt.Printf("dimension: %d\n", c.Dimension())
				fmt.Printf("metric:    %s\n", c.Metric())
				fmt.Printf("count:     %d\n", c.Count())
				return nil
			})
		},
	}
}

func newSaveCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Force a save of every collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := vecdb.Open(*dbPath)
			if err != nil {
				return err
			}
			return r.Save()
		},
	}
}
