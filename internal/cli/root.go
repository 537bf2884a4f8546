package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/liao/bookchat/internal/config"
)

// app 各子命令共享的状态，在 PersistentPreRunE 里填充
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// NewRootCommand 根命令，挂载 serve、ingest、download
func NewRootCommand(version string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "bookchat",
		Short: "Chat with your coding books",
		Long: `bookchat ingests PDF books into a local vector store and answers
questions about them over HTTP, grounding each answer in the most relevant
passages.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides log.level")

	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newIngestCommand(a))
	rootCmd.AddCommand(newDownloadCommand(a))

	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	a.cfg = cfg
	return nil
}
