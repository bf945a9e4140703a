package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/tutorgraph-backend/internal/app"
	"github.com/yungbote/tutorgraph-backend/internal/modules/changeset"
)

func newChangesetCmd() *cobra.Command {
	cs := &cobra.Command{
		Use:     "changeset",
		Aliases: []string{"cs"},
		Short:   "Stage, review and apply changesets",
	}

	stage := &cobra.Command{
		Use:   "stage <proposal.json|->",
		Short: "Stage a proposal as a draft changeset",
		Long: `Stage a proposal as a draft changeset.

The proposal is a JSON object with optional "source_id", "concepts",
"edges" and "file_patches" arrays. Pass "-" to read it from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			p, err := readProposal(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			view, err := a.Services.Changesets.Stage(ctx, p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		}),
	}

	itemStatus := &cobra.Command{
		Use:   "item-status <item-id> <pending|accepted|rejected>",
		Short: "Review a changeset item",
		Args:  cobra.ExactArgs(2),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			item, err := a.Services.Changesets.SetItemStatus(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), item)
		}),
	}

	apply := &cobra.Command{
		Use:   "apply <changeset-id>",
		Short: "Apply the accepted items of a changeset",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			res, err := a.Services.Changesets.Apply(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}

	show := &cobra.Command{
		Use:   "show <changeset-id>",
		Short: "Show a changeset and its items",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			view, err := a.Services.Changesets.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		}),
	}

	reject := &cobra.Command{
		Use:   "reject <changeset-id>",
		Short: "Reject a draft changeset and its open items",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			view, err := a.Services.Changesets.Reject(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		}),
	}

	cs.AddCommand(stage, itemStatus, apply, show, reject)
	return cs
}

func readProposal(stdin io.Reader, path string) (changeset.Proposal, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return changeset.Proposal{}, fmt.Errorf("read proposal: %w", err)
	}
	var p changeset.Proposal
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return changeset.Proposal{}, usageErr("proposal is not valid JSON: %v", err)
	}
	return p, nil
}
