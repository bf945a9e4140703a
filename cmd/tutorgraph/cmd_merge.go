package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yungbote/tutorgraph-backend/internal/app"
	"github.com/yungbote/tutorgraph-backend/internal/modules/merge"
)

func newMergeCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "merge",
		Short: "Merge duplicate concepts into a canonical one",
	}

	request := func(args []string) merge.Request {
		return merge.Request{CanonicalID: args[0], DuplicateIDs: args[1:]}
	}

	preview := &cobra.Command{
		Use:   "preview <canonical-id> <duplicate-id...>",
		Short: "Show what a merge would change without writing",
		Args:  cobra.MinimumNArgs(2),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			p, err := a.Services.Merges.Preview(ctx, request(args))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		}),
	}

	apply := &cobra.Command{
		Use:   "apply <canonical-id> <duplicate-id...>",
		Short: "Merge duplicates into the canonical concept",
		Args:  cobra.MinimumNArgs(2),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			res, err := a.Services.Merges.Apply(ctx, request(args))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}

	undo := &cobra.Command{
		Use:   "undo <merge-id>",
		Short: "Restore the graph to its state before a merge",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			rec, err := a.Services.Merges.Undo(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		}),
	}

	show := &cobra.Command{
		Use:   "show <merge-id>",
		Short: "Show a merge record and its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			rec, err := a.Services.Merges.Get(ctx, args[0])
			if err != nil {
				return err
			}
			snap, err := merge.DecodeSnapshot(rec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"merge": rec, "snapshot": snap})
		}),
	}

	m.AddCommand(preview, apply, undo, show)
	return m
}
