// Command isopack packs, unpacks and checks messages against a packager
// description.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mkadit/isopack"
	"github.com/mkadit/isopack/internal/frame"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

type rootOptions struct {
	configPath  string
	format      string
	frame       string
	hex         bool
	logLevel    string
	logFormat   string
	concurrency int

	logger *slog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("isopack failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "isopack",
		Short:         "Pack and unpack ISO 8583 style messages",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = setupLogger(opts.logLevel, opts.logFormat)
			slog.SetDefault(opts.logger)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Packager description (.json, .yaml)")
	flags.StringVar(&opts.format, "format", "iso87a", "Built-in packager when no config is given (iso87a, iso87b)")
	flags.StringVar(&opts.frame, "frame", "none", "Length indicator (none, bin2, bin4, ascii4, hex4)")
	flags.BoolVar(&opts.hex, "hex", false, "Read and write wire data as hex text")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")
	flags.IntVar(&opts.concurrency, "concurrency", 4, "Concurrent unpack workers")

	cmd.AddCommand(
		newPackCommand(opts),
		newUnpackCommand(opts),
		newCheckCommand(opts),
	)
	return cmd
}

// codec loads the packager named by the flags.
func (o *rootOptions) codec() (isopack.MessageCodec, error) {
	if o.configPath != "" {
		return isopack.LoadPackagerFile(o.configPath, isopack.WithBuildLogger(o.logger))
	}
	switch strings.ToLower(o.format) {
	case "iso87a":
		return isopack.NewISO87APackager(isopack.WithLogger(o.logger))
	case "iso87b":
		return isopack.NewISO87BPackager(isopack.WithLogger(o.logger))
	}
	return nil, fmt.Errorf("unknown format %q", o.format)
}

func (o *rootOptions) frameKind() (frame.Kind, error) {
	return frame.ParseKind(o.frame)
}
