// Команда notectl - служебная утилита: локальная сборка сообщений и миграции БД.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"artnote-server/internal/logger"
)

var (
	verbose bool

	// Логгер для внутренних пакетов. По умолчанию молчит.
	serviceLogger = zap.NewNop()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "notectl",
		Short:         "Утилита сервиса сообщений о прогрессе",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogger()
			if !verbose {
				return nil
			}
			l, err := logger.New(logger.Config{Level: "debug", Encoding: "console", Service: "notectl"})
			if err != nil {
				return err
			}
			serviceLogger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = serviceLogger.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "подробные логи внутренних пакетов")

	root.AddCommand(newComposeCmd(), newMigrateCmd())
	return root
}

func initLogger() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	logLevel := zerolog.InfoLevel
	if verbose {
		logLevel = zerolog.DebugLevel
	} else if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		logLevel = lvl
	}
	zerolog.SetGlobalLevel(logLevel)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
