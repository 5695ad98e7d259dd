package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/edgelisp/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database string
	EventID  string
	Limit    int
}

// EventRow is one outgoing event in the history listing.
type EventRow struct {
	Seq       int64  `json:"seq"`
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	Value     int32  `json:"value"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List published outgoing events",
		Long: `List the outgoing events a device has published, oldest first.

Example:
  edgelisp events --db ./edgelisp.db
  edgelisp events --db ./edgelisp.db --event door --limit 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.EventID, "event", "", "only list events with this id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func listEvents(opts *EventsOptions, cmd *cobra.Command) error {
	// store.Open would create a missing file.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	events, err := st.ReadOutgoing(ctx, opts.EventID, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	rows := make([]EventRow, len(events))
	for i, ev := range events {
		rows[i] = EventRow{
			Seq:       ev.Seq,
			ID:        ev.ID,
			EventID:   ev.EventID,
			Value:     ev.Value,
			Sender:    ev.SenderType + "/" + ev.SenderID,
			Timestamp: ev.Timestamp,
		}
	}

	if opts.Format == "json" {
		f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return f.Success(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No events recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tEVENT\tVALUE\tSENDER\tTIMESTAMP\tID")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%s\n", r.Seq, r.EventID, r.Value, r.Sender, r.Timestamp, r.ID)
	}
	return tw.Flush()
}
