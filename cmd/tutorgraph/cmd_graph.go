package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/tutorgraph-backend/internal/app"
	"github.com/yungbote/tutorgraph-backend/internal/modules/graphquery"
)

func newLensCmd() *cobra.Command {
	var (
		radius         int
		edgeTypes      []string
		includeRelated bool
	)
	cmd := &cobra.Command{
		Use:   "lens <concept-id>",
		Short: "Show the bounded neighbourhood of a concept",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			res, err := a.Services.Graph.Lens(ctx, graphquery.LensRequest{
				CenterID:       args[0],
				Radius:         radius,
				EdgeTypeFilter: edgeTypes,
				IncludeRelated: includeRelated,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	cmd.Flags().IntVar(&radius, "radius", 1, "hops from the center (capped by configuration)")
	cmd.Flags().StringSliceVar(&edgeTypes, "type", nil, "only traverse these edge types")
	cmd.Flags().BoolVar(&includeRelated, "related", false, "include RELATED_TO neighbours")
	return cmd
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path <concept-id>",
		Short: "Order a concept's transitive prerequisites",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			res, err := a.Services.Graph.PrerequisitePath(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func newPackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pack <concept-id>",
		Short: "Build the study sequence for a concept",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			pack, err := a.Services.ContextPack.Build(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pack)
		}),
	}
}

func newSearchCmd() *cobra.Command {
	var (
		exact bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Find concepts by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			res, err := a.Services.Graph.Search(ctx, strings.Join(args, " "), exact, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	cmd.Flags().BoolVar(&exact, "exact", false, "match the whole title, ignoring case")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

func newEdgeCmd() *cobra.Command {
	edge := &cobra.Command{
		Use:   "edge",
		Short: "Edge commands",
	}

	var (
		evidence   []string
		sourceURL  string
		confidence float64
	)
	create := &cobra.Command{
		Use:   "create <from-id> <type> <to-id>",
		Short: "Create an edge, refusing prerequisite cycles",
		Args:  cobra.ExactArgs(3),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			in := graphquery.EdgeInput{
				FromConceptID:    args[0],
				Type:             strings.ToUpper(args[1]),
				ToConceptID:      args[2],
				EvidenceChunkIDs: evidence,
			}
			if sourceURL != "" {
				in.SourceURL = &sourceURL
			}
			if cmd.Flags().Changed("confidence") {
				in.Confidence = &confidence
			}
			e, err := a.Services.Graph.CreateEdgeGuarded(ctx, in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), e)
		}),
	}
	create.Flags().StringSliceVar(&evidence, "evidence", nil, "evidence chunk ids")
	create.Flags().StringVar(&sourceURL, "source-url", "", "source url")
	create.Flags().Float64Var(&confidence, "confidence", 0, "confidence in [0,1]")

	edge.AddCommand(create)
	return edge
}
