// Command tutorgraph drives the knowledge-graph core against the configured
// database and vault.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/tutorgraph-backend/internal/app"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

var Version = "0.1.0"

// appFactory is swapped in tests.
var appFactory = app.New

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tutorgraph",
		Short:         "Knowledge-graph tutor core: lenses, study paths, changesets and merges",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newLensCmd(),
		newPathCmd(),
		newPackCmd(),
		newSearchCmd(),
		newEdgeCmd(),
		newChangesetCmd(),
		newMergeCmd(),
		newWatchCmd(),
	)
	return root
}

// runWithApp builds the application for one command invocation and tears
// it down afterwards.
func runWithApp(fn func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := appFactory(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())
		return fn(ctx, a, cmd, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type errorBody struct {
	Status  int            `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// exitCode maps error kinds to distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument):
		return 2
	case errors.Is(err, apperr.ErrNotFound):
		return 3
	case errors.Is(err, apperr.ErrConflict):
		return 4
	default:
		return 1
	}
}

func reportError(w io.Writer, err error) {
	api := apperr.ToAPI(err)
	body := errorBody{Status: api.Status, Code: api.Code, Message: err.Error(), Fields: api.Fields}
	var e *apperr.Error
	if errors.As(err, &e) {
		body.Message = e.Message
	}
	_ = printJSON(w, map[string]any{"error": body})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}

func usageErr(format string, args ...any) error {
	return apperr.Validation("invalid_arguments", fmt.Sprintf(format, args...), nil)
}
