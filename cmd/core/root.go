package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/resaletally/internal/app"
	"github.com/kimhsiao/resaletally/internal/config"
	"github.com/kimhsiao/resaletally/internal/logging"
)

// cli carries flags and the lazily built application for one invocation.
type cli struct {
	cfgFile    string
	envFile    string
	dataDir    string
	jsonOutput bool

	cfg *config.Config
	app *app.App
}

// execute runs one invocation and always releases the store.
func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "resaletally",
		Short: "ResaleTally sync and data tool",
		Long: `resaletally manages the local ResaleTally store and its cloud copy.

Data is keyed by a 6 character user code. Use the same code on another
device (resaletally login CODE) to share and merge data between devices.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default: ./resaletally.yaml or ~/.resaletally/resaletally.yaml)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", ".env file to load")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "data directory (overrides config)")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print JSON output")

	root.AddCommand(
		newVersionCmd(),
		newSyncCmd(c),
		newDownloadCmd(c),
		newLoginCmd(c),
		newStatusCmd(c),
		newIDCmd(c),
		newQueueCmd(c),
		newExportCmd(c),
		newImportCmd(c),
		newRestoreCmd(c),
		newConflictsCmd(c),
		newConfigCmd(c),
	)
	return root
}

// loadConfig reads configuration once per invocation.
func (c *cli) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, err := config.Load(config.Options{ConfigFile: c.cfgFile, EnvFile: c.envFile})
	if err != nil {
		return nil, err
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}

	if cfg.Log.File != "" {
		logging.Setup(cfg.Log.Level, cfg.Log.File)
	} else {
		logging.Init(os.Stderr, logging.ParseLevel(cfg.Log.Level))
	}

	c.cfg = cfg
	return cfg, nil
}

// open builds the application for commands that touch the store.
func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	c.app = a
	return a, nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// print writes v as indented JSON with --json, otherwise runs text.
func (c *cli) print(out io.Writer, v interface{}, text func()) error {
	if c.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "resaletally v%s\n", Version)
		},
	}
}
