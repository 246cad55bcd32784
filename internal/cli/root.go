// Package cli implements the planproof command tree.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/planproof/internal/config"
	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/extract"
	"github.com/dshills/planproof/internal/log"
	"github.com/dshills/planproof/internal/validator"
)

// RootOptions holds global flags for all commands and the configuration
// resolved from them.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Format     string // "json" | "text"

	cfg    *config.Config
	logger log.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the planproof CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "planproof",
		Short: "planproof - logical plan equivalence checking",
		Long:  "Canonicalize SQL query plans, prove rewrites equivalent and select the cheapest proven rewrite.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if _, _, err := opts.setup(cmd); err != nil {
				return opts.formatter(cmd).Fail(err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file path")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text, json)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCanonCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewOptimizeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setup resolves configuration and logging once per process. The file
// is read first, then PLANPROOF_* variables, then flags.
func (o *RootOptions) setup(cmd *cobra.Command) (*config.Config, log.Logger, error) {
	if o.cfg != nil {
		return o.cfg, o.logger, nil
	}

	var cfg *config.Config
	if o.ConfigPath != "" {
		loaded, err := config.LoadFromFile(o.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.LoadFromFlags(o.LogLevel, o.LogFormat, "", "")
	if err := cfg.Validate(); err != nil {
		return nil, nil, verrors.Wrap(err, verrors.ConfigFileError, "invalid configuration").WithDetail(err.Error())
	}

	o.cfg = cfg
	o.logger = log.Configure(cfg.Log(), cmd.ErrOrStderr())
	return o.cfg, o.logger, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	format := o.Format
	if format == "" {
		format = "text"
	}
	return &OutputFormatter{Format: format, Writer: cmd.OutOrStdout()}
}

// newValidator builds a validator for cfg with the SQL extractor wired in.
func newValidator(cfg *config.Config, logger log.Logger) (*validator.Validator, error) {
	return validator.New(
		validator.FromConfig(cfg),
		validator.WithExtractor(extract.New(extract.WithLogger(logger))),
		validator.WithLogger(logger),
	)
}

// readSQL returns arg, or the contents of the file it names when it
// starts with '@'.
func readSQL(arg string) (string, error) {
	path, ok := strings.CutPrefix(arg, "@")
	if !ok {
		return arg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", verrors.InputFileError(path, err)
	}
	return string(data), nil
}
