package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/app"
)

const shutdownTimeout = 5 * time.Second

// newServeCommand creates the serve command.
func newServeCommand(c *app.Container) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the taskdeck daemon",
		Long: `Run the taskdeck daemon.

The daemon exposes the websocket gateway at /ws. Clients send board and
session commands over the socket and receive output, status and
conversation frames for the tasks they attach to.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := listen
			if addr == "" {
				addr = c.Config.Server.Listen
			}

			mux := http.NewServeMux()
			mux.Handle("/ws", c.GatewayServer())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})

			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.ListenAndServe()
			}()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "taskdeck listening on %s\n", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				c.Logger.Warn("", "server", "shutdown: "+err.Error())
			}
			return c.Close()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides the configured one)")
	return cmd
}
