package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/client"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/events"
	"github.com/SensualOdin/ChickenTendies-sub000/pkg/logging"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	URL         string
	GroupID     string
	MemberID    string
	Binding     string
	MaxAttempts int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a group's live events",
		Long: `Connect to a group's event stream as one of its members and print every
event as a JSON line. The connection is re-established with exponential
backoff and starts again from a fresh snapshot.

Example:
  chickentendies watch --url http://localhost:8080 --group <id> --member <id> --binding <token>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if opts.Verbose {
				level = "debug"
			}
			logging.Setup("text", level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := newWatchClient(opts, cmd.OutOrStdout())
			err := c.Run(ctx)
			if errors.Is(err, client.ErrOffline) {
				return fmt.Errorf("%w after %d attempts", err, opts.MaxAttempts)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&opts.GroupID, "group", "", "group id (required)")
	cmd.Flags().StringVar(&opts.MemberID, "member", "", "member id (required)")
	cmd.Flags().StringVar(&opts.Binding, "binding", "", "member binding token (required)")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", client.DefaultConfig().MaxAttempts, "failed attempts before giving up")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("binding")

	return cmd
}

func newWatchClient(opts *WatchOptions, out io.Writer) *client.Client {
	cfg := client.DefaultConfig()
	cfg.MaxAttempts = opts.MaxAttempts
	cfg.OnEvent = func(e events.Event) {
		raw, err := events.Encode(e)
		if err != nil {
			slog.Error("Failed to encode event", "kind", e.Kind(), "error", err)
			return
		}
		fmt.Fprintln(out, string(raw))
	}
	cfg.OnState = func(s client.State) {
		slog.Info("Connection state changed", "group_id", opts.GroupID, "state", s.String())
	}
	return client.New(client.WebsocketDialer(opts.URL, opts.GroupID, opts.MemberID, opts.Binding), cfg)
}
