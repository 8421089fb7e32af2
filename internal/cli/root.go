// Package cli - дерево команд cobra для сервиса комментариев.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/UkralStul/comments-service/internal/config"
)

var (
	flagStorage string
	flagDevMode bool
)

// NewRootCmd создает корневую команду с глобальными флагами.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "comments",
		Short:         "Threaded comments service",
		Long:          "HTTP service for threaded comments with attachments, CAPTCHA, search and live updates over websocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagStorage, "storage", "", "storage backend (memory|postgres), overrides STORAGE_TYPE")
	root.PersistentFlags().BoolVar(&flagDevMode, "dev", false, "human-readable debug logs, overrides DEV_MODE")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newNormalizeCmd(),
	)

	return root
}

// loadConfig читает окружение и применяет глобальные флаги.
func loadConfig() config.Config {
	cfg := config.Load()
	if flagStorage != "" {
		cfg.StorageType = flagStorage
	}
	if flagDevMode {
		cfg.DevMode = true
	}
	return cfg
}
