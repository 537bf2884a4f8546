package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/liao/bookchat/internal/download"
)

func newDownloadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Fetch the books listed in data.url_file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			client := &http.Client{Timeout: time.Duration(cfg.Data.DownloadTimeoutSec) * time.Second}

			report, err := download.Run(cmd.Context(), client, cfg.Data.URLFile, cfg.Data.DownloadDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded: %d, failed: %d\n", len(report.Downloaded), len(report.Failed))
			return nil
		},
	}
}
