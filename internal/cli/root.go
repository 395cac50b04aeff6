package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/config"
	"github.com/roach88/relq/internal/querysql"
)

// RootOptions holds global flags for all commands, and the state the root
// command resolves before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	NoColor    bool

	// Fs is the filesystem scenarios and golden files are read from.
	// Defaults to the OS filesystem.
	Fs afero.Fs

	// Config is loaded in PersistentPreRunE.
	Config *config.Config

	// Logger writes to the command's stderr.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{config.FormatText, config.FormatJSON}

// NewRootCommand creates the root command for the relq CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relq",
		Short: "relq - relational query composition",
		Long: `Compose relational queries from scenario files, render them for
SQLite, PostgreSQL and MySQL, and run them against a database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", config.FormatText, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default: ./.relq.yaml or $HOME/.relq.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))

	return cmd
}

// setup loads config, applies flag overrides and installs the logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}

	loadOpts := []config.Option{config.WithFs(o.Fs)}
	if o.ConfigFile != "" {
		loadOpts = append(loadOpts, config.WithConfigFile(o.ConfigFile))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if cmd.Flags().Changed("format") {
		cfg.Format = o.Format
	} else {
		o.Format = cfg.Format
	}
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	if o.Verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	o.Config = cfg
	o.Logger = newLogger(cmd.ErrOrStderr(), cfg)
	return nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.Format == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
		Color:     !o.NoColor && o.Format != config.FormatJSON && !color.NoColor,
	}
}

// dialectFlag resolves a --dialect/--driver style flag, falling back to
// the configured value.
func dialectFlag(cmd *cobra.Command, name, value string, fallback querysql.Dialect) (querysql.Dialect, error) {
	if !cmd.Flags().Changed(name) {
		return fallback, nil
	}
	d, err := querysql.ParseDialect(value)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid --"+name, err)
	}
	return d, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
