package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liao/bookchat/internal/rag"
	"github.com/liao/bookchat/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat HTTP API",
		Long:  "Serve GET / and POST /chat on top of an already ingested vector store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.RequireCredential(); err != nil {
				return err
			}

			// 优雅关闭
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := rag.OpenStore(cfg.RAG.VectorsDir, cfg.RAG.Collection, false)
			if err != nil {
				return err
			}

			client, err := newModelClient(ctx, cfg)
			if err != nil {
				return err
			}

			pipeline := rag.NewPipeline(client, store, client, cfg.RAG.TopK, cfg.RAG.Role)
			srv := server.New(pipeline, server.Options{
				Addr:         cfg.Server.Addr,
				CORSOrigins:  cfg.Server.CORSOrigins,
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
			})
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}
