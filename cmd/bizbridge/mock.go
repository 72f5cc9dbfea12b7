package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/atu-ide/bizbridge/internal/logging"
	"github.com/atu-ide/bizbridge/internal/models"
	"github.com/atu-ide/bizbridge/internal/server"
)

// mockCmd runs a loopback backend for trying the bridge without a real one
var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run a loopback backend",
	Long: `Runs a backend that echoes requests for the --echo heads, fails the --fail
heads with a SERIOUS_ERROR envelope, and answers anything else with an
unknown-service error. With --push it broadcasts a heartbeat event to every
connected client.`,
	Example: `  bizbridge mock --push heartbeat:mock
  bizbridge mock --ws-addr 127.0.0.1:7070 --fail compile_all:compiler`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logging.SetOutput(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor, TimeFormat: time.TimeOnly})

		b, err := buildMockBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx := cmd.Context()
		if push, _ := cmd.Flags().GetString("push"); push != "" {
			head, err := parseHead(push)
			if err != nil {
				return err
			}
			every, _ := cmd.Flags().GetDuration("push-every")
			go heartbeat(ctx, b, head, every)
		}

		wsAddr, _ := cmd.Flags().GetString("ws-addr")
		if wsAddr != "" {
			return serveMockWebsocket(ctx, b, wsAddr)
		}

		l, err := server.ListenUnix(cfg.Transport.Socket)
		if err != nil {
			return err
		}
		defer os.Remove(cfg.Transport.Socket)

		successColor.Printf("✓ Mock backend listening on %s\n", cfg.Transport.Socket)
		return b.Serve(ctx, l)
	},
}

func buildMockBackend(cmd *cobra.Command) (*server.Backend, error) {
	b := server.New()

	echo, _ := cmd.Flags().GetStringArray("echo")
	for _, s := range echo {
		head, err := parseHead(s)
		if err != nil {
			return nil, err
		}
		b.Handle(head, server.Echo)
	}

	fail, _ := cmd.Flags().GetStringArray("fail")
	for _, s := range fail {
		head, err := parseHead(s)
		if err != nil {
			return nil, err
		}
		b.Handle(head, failHandler)
	}

	return b, nil
}

func failHandler(_ context.Context, req *server.Request) models.RawResponse {
	return models.RawResponse{Error: &models.ResponseError{
		ErrorID:    500,
		ErrorLevel: models.SeriousError,
		ErrorDesc: models.ErrorDesc{
			DescKey: true,
			Desc:    "mock.failed",
			Params:  []string{req.Head.ServiceName, req.Head.RequestID},
		},
	}}
}

func heartbeat(ctx context.Context, b *server.Backend, head models.RequestHead, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			seq++
			data, _ := json.Marshal(map[string]any{"seq": seq, "at": t.Format(time.RFC3339)})
			n := b.Push(head, models.RawResponse{Error: models.Success(), Data: data})
			logging.Debug().Str("event", head.EventKey()).Int("peers", n).Int("seq", seq).Msg("heartbeat pushed")
		}
	}
}

func serveMockWebsocket(ctx context.Context, b *server.Backend, addr string) error {
	srv := &http.Server{Addr: addr, Handler: b, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	successColor.Printf("✓ Mock backend listening on ws://%s\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}
