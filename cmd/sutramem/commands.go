package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/sutramem/pkg/memory"
	"github.com/cuemby/sutramem/pkg/pathfinder"
	"github.com/cuemby/sutramem/pkg/types"
)

// openStoreFromFlag loads the YAML config named by --config and opens a
// Store against it. Every one-shot subcommand shares this.
func openStoreFromFlag(cmd *cobra.Command) (*memory.Store, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := types.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return memory.OpenStore(cfg)
}

func parseConceptID(s string) (types.ConceptID, error) {
	return types.ParseID(s)
}

var learnCmd = &cobra.Command{
	Use:   "learn [id] [content]",
	Short: "Learn (or update) a concept",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStoreFromFlag(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := parseConceptID(args[0])
		if err != nil {
			return err
		}
		strength, _ := cmd.Flags().GetFloat32("strength")
		confidence, _ := cmd.Flags().GetFloat32("confidence")
		flush, _ := cmd.Flags().GetBool("flush")

		ctx := context.Background()
		seq, err := st.LearnConcept(ctx, id, []byte(args[1]), nil, strength, confidence)
		if err != nil {
			return err
		}
		if flush {
			if _, err := st.FlushPending(ctx); err != nil {
				return err
			}
		}
		fmt.Printf("learned %s at sequence %d\n", id, seq)
		return nil
	},
}

func init() {
	learnCmd.Flags().Float32("strength", 0.5, "Initial concept strength")
	learnCmd.Flags().Float32("confidence", 0.5, "Initial concept confidence")
	learnCmd.Flags().Bool("flush", true, "Flush pending writes to a durable snapshot before exiting")
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Fetch a concept by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStoreFromFlag(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := parseConceptID(args[0])
		if err != nil {
			return err
		}
		c, ok := st.GetConcept(context.Background(), id)
		if !ok {
			return fmt.Errorf("concept %s not found", id)
		}
		fmt.Printf("id=%s strength=%.3f confidence=%.3f content=%q\n", c.ID, c.Strength, c.Confidence, c.Content)
		return nil
	},
}

var associateCmd = &cobra.Command{
	Use:   "associate [source] [target] [type] [weight]",
	Short: "Create a weighted association between two concepts",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStoreFromFlag(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		source, err := parseConceptID(args[0])
		if err != nil {
			return err
		}
		target, err := parseConceptID(args[1])
		if err != nil {
			return err
		}
		typ := types.ParseAssocType(args[2])
		var weight float32
		if _, err := fmt.Sscanf(args[3], "%f", &weight); err != nil {
			return fmt.Errorf("invalid weight %q: %w", args[3], err)
		}

		ctx := context.Background()
		if err := st.CreateAssociation(ctx, source, target, typ, weight); err != nil {
			return err
		}
		if _, err := st.FlushPending(ctx); err != nil {
			return err
		}
		fmt.Printf("associated %s -> %s (%s, weight %.3f)\n", source, target, typ, weight)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [k] [query-vector-components...]",
	Short: "Semantic nearest-neighbor search over concept vectors",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStoreFromFlag(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		var k int
		if _, err := fmt.Sscanf(args[0], "%d", &k); err != nil {
			return fmt.Errorf("invalid k %q: %w", args[0], err)
		}
		query := make([]float32, len(args)-1)
		for i, s := range args[1:] {
			if _, err := fmt.Sscanf(s, "%f", &query[i]); err != nil {
				return fmt.Errorf("invalid vector component %q: %w", s, err)
			}
		}
		ef, _ := cmd.Flags().GetInt("ef")

		results, err := st.SemanticSearch(context.Background(), query, k, ef)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%s\tdistance=%.6f\n", r.ID, r.Distance)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("ef", 0, "Search-time candidate width (ignored; ef_search from config applies)")
}

var pathCmd = &cobra.Command{
	Use:   "path [start] [target...]",
	Short: "Find confidence-ranked paths from start to one or more targets",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := types.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		st, err := memory.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		start, err := parseConceptID(args[0])
		if err != nil {
			return err
		}
		targets := make([]types.ConceptID, len(args)-1)
		for i, s := range args[1:] {
			targets[i], err = parseConceptID(s)
			if err != nil {
				return err
			}
		}

		strategy, _ := cmd.Flags().GetString("strategy")
		var params *pathfinder.Params
		if strategy != "" {
			p := pathfinder.FromDefaults(cfg.Pathfinder)
			p.Strategy = types.PathStrategy(strategy)
			params = &p
		}

		paths, err := st.FindPaths(context.Background(), start, targets, params)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Printf("confidence=%.6f path=%v\n", p.Confidence, p.IDs)
		}
		return nil
	},
}

func init() {
	pathCmd.Flags().String("strategy", "", "Override pathfinder strategy (bfs, best_first, bidirectional)")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store-wide statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStoreFromFlag(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		s := st.Stats()
		fmt.Printf("concepts=%d edges=%d vectors=%d health=%.3f queue_utilization=%.3f hot=%v\n",
			s.ConceptCount, s.EdgeCount, s.VectorCount, s.Health, s.QueueUtilization, s.Hot)
		for i, ss := range s.ShardStats {
			fmt.Printf("  shard %d: concepts=%d edges=%d load_rank=%d\n", i, ss.ConceptCount, ss.EdgeCount, ss.LoadRank)
		}
		return nil
	},
}

// aggregate_paths takes no store state (it is a pure function over
// already-computed paths), so it has no dedicated CLI verb here; it is
// exercised directly by the aggregator package's own tests.
