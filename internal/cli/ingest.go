package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liao/bookchat/internal/extract"
	"github.com/liao/bookchat/internal/rag"
)

func newIngestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Extract, chunk, embed and store documents",
		Long: `Read every supported document in the source directory (default data.source_dir),
split it into overlapping chunks and add the chunks that are not stored yet.
Running it again on the same corpus does not call the embedding model.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			dir := cfg.Data.SourceDir
			if len(args) == 1 {
				dir = args[0]
			}
			if err := cfg.RequireCredential(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			chunker, err := rag.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
			if err != nil {
				return err
			}
			client, err := newModelClient(ctx, cfg)
			if err != nil {
				return err
			}

			registry := extract.NewRegistry()
			slog.Info("ingest starting", "dir", dir, "extensions", registry.Extensions(), "collection", cfg.RAG.Collection)
			ingestor := rag.NewIngestor(registry, chunker, client, cfg.RAG.BatchSize, cfg.RAG.PerDocument)

			// 提取出文本之后才创建集合
			corpus, err := ingestor.Load(ctx, dir)
			if err != nil {
				return err
			}
			store, err := rag.OpenStore(cfg.RAG.VectorsDir, cfg.RAG.Collection, true)
			if err != nil {
				return err
			}

			report, err := ingestor.Store(ctx, store, corpus)
			if report != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "files: %d, skipped: %d, chunks: %d, added: %d, total: %d\n",
					report.Files, report.Skipped, report.Chunks, report.Added, report.Total)
			}
			return err
		},
	}
	return cmd
}
