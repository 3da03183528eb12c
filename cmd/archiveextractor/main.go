package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ArchiveExtractor/internal/app"
	"ArchiveExtractor/internal/config"
	"ArchiveExtractor/internal/domain"
	"ArchiveExtractor/internal/logging"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "archiveextractor",
		Short:         "Extract articles from authenticated newspaper archives",
		Long:          `Logs into Newspapers.com, the LAPL proxy databases and NewspaperArchive, then extracts article text, images and downloads in bounded parallel batches.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML config file (default: $ARCHIVE_EXTRACTOR_CONFIG)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "error, warn, info or debug")
	root.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "also write logs to this rotated file")

	root.AddCommand(
		newBatchCmd(flags),
		newCookiesCmd(flags),
		newAuthCmd(flags),
		newKeepaliveCmd(flags),
	)
	return root
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	var cfg config.Config
	if flags.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(flags.configPath); err != nil {
			return config.Config{}, err
		}
	} else {
		cfg = config.Load()
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFile != "" {
		cfg.Logging.File = flags.logFile
	}
	return cfg, nil
}

// openApp loads config, builds the logger and the application. The returned closer releases both.
func openApp(ctx context.Context, flags *globalFlags) (*app.Application, *slog.Logger, io.Closer, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, logCloser := logging.New(cfg.Logging)

	application, err := app.New(ctx, cfg, logger, app.Deps{})
	if err != nil {
		logCloser.Close()
		return nil, nil, nil, err
	}
	return application, logger, closerFunc(func() error {
		err := application.Close()
		logCloser.Close()
		return err
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func parseSource(value string) (domain.SourceID, error) {
	source, ok := domain.ParseSourceID(value)
	if !ok {
		return "", fmt.Errorf("unknown source %q (want newspapers, lapl or newspaperarchive)", value)
	}
	return source, nil
}
