package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/aescanero/hrrelay/internal/application/relay"
	"github.com/aescanero/hrrelay/internal/config"
	"github.com/aescanero/hrrelay/pkg/client"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	defaultBaseURL = "http://localhost:2548/"
	defaultEnvFile = ".env"
	configFileEnv  = "HR_CONFIG_FILE"
)

// options holds the persistent flags
type options struct {
	envFile    string
	configFile string
}

// configPath returns the --config flag, falling back to HR_CONFIG_FILE.
// It is read after the env file has been applied.
func (o *options) configPath() string {
	if o.configFile != "" {
		return o.configFile
	}
	return os.Getenv(configFileEnv)
}

// load reads the configuration, layered over the config file when one is set
func (o *options) load() (*config.Config, error) {
	if path := o.configPath(); path != "" {
		return config.LoadWithFile(path)
	}
	return config.Load()
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "hrrelay",
		Short:         "Heart-rate relay: serve the latest bpm reading over HTTP",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile, cmd.Flags().Changed("env-file"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "file of KEY=value settings loaded before the environment is read")
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "JSON config file layered under the environment (default $"+configFileEnv+")")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newGetCommand(opts),
		newSendCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (configured through environment variables and --config)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
}

func newGetCommand(opts *options) *cobra.Command {
	var url string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the relay's current reading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			bpm, err := client.New(opts.resolveURL(url), timeout).Get(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), bpm)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "relay URL (default from HR_LISTEN_ADDRESS/HR_LISTEN_PORT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func newSendCommand(opts *options) *cobra.Command {
	var url string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <bpm>",
		Short: "Submit a reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bpm, err := relay.ParseBPM(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			return client.New(opts.resolveURL(url), timeout).Send(ctx, bpm)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "relay URL (default from HR_LISTEN_ADDRESS/HR_LISTEN_PORT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hrrelay %s (built %s)\n", Version, BuildTime)
		},
	}
}

// loadEnvFile applies an env file without overriding variables already set.
// A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// resolveURL prefers an explicit flag, then the configured listen address
func (o *options) resolveURL(flag string) string {
	if flag != "" {
		return flag
	}
	cfg, err := o.load()
	if err != nil {
		return defaultBaseURL
	}
	return cfg.GetBaseURL()
}

func newConfigCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the persisted config file",
	}

	requirePath := func() (string, error) {
		path := opts.configPath()
		if path == "" {
			return "", fmt.Errorf("no config file: pass --config or set %s", configFileEnv)
		}
		return path, nil
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective persisted settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg.File(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	save := &cobra.Command{
		Use:   "save",
		Short: "Write the effective settings (file plus environment) to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := requirePath()
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return cfg.File().Save(path)
		},
	}

	setListen := &cobra.Command{
		Use:   "set-listen <host:port>",
		Short: "Change the listen address; malformed input resets it to localhost:2548",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editConfigFile(requirePath, func(f *config.File) {
				f.SetListenAddr(args[0])
				fmt.Fprintln(cmd.OutOrStdout(), f.ListenAddress())
			})
		},
	}

	setFile := &cobra.Command{
		Use:   "set-file <path>",
		Short: "Change the heart-rate file path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editConfigFile(requirePath, func(f *config.File) {
				f.FilePath = args[0]
			})
		},
	}

	cmd.AddCommand(show, save, setListen, setFile)
	return cmd
}

// editConfigFile applies edit to the config file, creating it if needed.
// Changes take effect the next time the relay starts.
func editConfigFile(requirePath func() (string, error), edit func(*config.File)) error {
	path, err := requirePath()
	if err != nil {
		return err
	}
	f, err := config.OpenFile(path)
	if err != nil {
		return err
	}
	edit(f)
	return f.Save(path)
}
