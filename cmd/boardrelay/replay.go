package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/boardrelay/internal/session"
)

func replayCmd(a *app) *cobra.Command {
	var commands bool

	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Rebuild session state from a JSON Lines file",
		Long: `Rebuild session state from a JSON Lines file and print the result.

By default FILE holds accepted events, one per line, as served by
/history.jsonl. With --commands FILE holds raw client messages instead,
which are applied in order the way the relay would apply them: lines the
relay would ignore are skipped and counted.

Examples:
  # Inspect a saved history
  boardrelay replay history.jsonl

  # Apply a recorded client session
  boardrelay replay --commands session.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			store, skipped, err := replayFile(f, commands)
			if err != nil {
				return fmt.Errorf("replaying %s: %w", args[0], err)
			}

			a.logger.Debug("replay complete",
				zap.String("file", args[0]),
				zap.Int("history", store.Len()),
				zap.Int("skipped", skipped),
			)
			return printStore(cmd.OutOrStdout(), store, skipped)
		},
	}

	cmd.Flags().BoolVar(&commands, "commands", false, "treat FILE as raw client commands")

	return cmd
}

// replayFile returns the rebuilt store and, in commands mode, how many lines
// were skipped. A history must be consistent, so nothing is skipped there.
func replayFile(r io.Reader, commands bool) (*session.Store, int, error) {
	if !commands {
		events, err := session.ReadJSONL(r)
		if err != nil {
			return nil, 0, err
		}
		store, err := session.Replay(events)
		return store, 0, err
	}

	cmds, skipped, err := session.ReadCommands(r)
	if err != nil {
		return nil, 0, err
	}
	store := session.NewStore()
	for _, c := range cmds {
		store.Apply(c)
	}
	return store, skipped, nil
}

func printStore(w io.Writer, store *session.Store, skipped int) error {
	_, stickies := store.Snapshot()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tX\tY\tZ\tHTML")
	for _, s := range stickies {
		fmt.Fprintf(tw, "%s\t%g\t%g\t%d\t%s\n", s.ID, s.X, s.Y, s.Z, s.HTML)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d stickies, %d events", len(stickies), store.Len())
	if skipped > 0 {
		fmt.Fprintf(w, ", %d lines skipped", skipped)
	}
	_, err := fmt.Fprintln(w)
	return err
}
