package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/UkralStul/comments-service/internal/imaging"
	"github.com/UkralStul/comments-service/internal/logging"
)

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <attachment-id>...",
		Short: "Downscale image attachments in place",
		Long:  "Run image normalization synchronously for the given attachments, e.g. after a job was dropped from the queue.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logging.Setup(cfg.DevMode)

			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			fileStore, err := openFiles(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			normalizer := imaging.NewNormalizer(store, fileStore, cfg.ImageMaxWidth, cfg.ImageMaxHeight).WithMaxPixels(cfg.ImageMaxPixels)
			for _, id := range args {
				if err := normalizer.Normalize(cmd.Context(), id); err != nil {
					return fmt.Errorf("normalize %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", id)
			}
			return nil
		},
	}
}
