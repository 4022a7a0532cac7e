package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/logging"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

const defaultEnvFile = ".env"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	envFile    string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "medrag",
		Short: "Retrieval-augmented answers from clinical notes and PubMed",
		Long: `medrag answers questions using only retrieved context: chunks of a single
clinical note or EHR record, or abstracts fetched from PubMed.

API keys are read from the environment (GEMINI_API_KEY, GOOGLE_API_KEY,
OPENAI_API_KEY) or from MEDRAG_* overrides, optionally loaded from a .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/medrag/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file with API keys")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
	})

	root.AddCommand(
		newClinicalCmd(opts),
		newLiteratureCmd(opts),
		newChatCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newWorkerCmd(opts),
		newEvalCmd(opts),
		newVersionCmd(),
	)
	return root
}

// init loads the env file, configuration and logger.
func (o *globalOptions) init(cmd *cobra.Command) error {
	if err := loadEnvFile(o.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(o.configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
	}
	o.cfg = cfg

	logCfg := logging.NewCLIConfig()
	if isDaemon(cmd) {
		logCfg = logging.NewDefaultConfig()
	}
	if o.logLevel != "" {
		level, err := logging.LevelFromString(o.logLevel)
		if err != nil {
			return fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
		}
		logCfg.Level = level
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.logger = logger
	return nil
}

// loadEnvFile loads dotenv variables without overriding the environment.
// A missing default file is ignored; a missing explicit file is an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("%w: env file %s: %v", pipeline.ErrInvalidRequest, path, err)
	}
	return nil
}

// isDaemon reports whether cmd is a long-running surface that logs JSON.
func isDaemon(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "serve", "worker":
		return true
	}
	return false
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip config loading so version works with a broken config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "medrag by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
