// docshell serves the root document shell: the HTML document, its
// fingerprinted assets, the CSS bundle and, in development, live reload.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"impractical.co/docshell/internal/config"
	"impractical.co/docshell/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// serve flags
	listenAddr string
	devMode    bool

	// build flags
	outDir string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("docshell failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "docshell",
		Short:         "docshell - serve the root HTML document shell",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides config)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document shell over HTTP",
		Long: `Serve the document, its assets and the CSS bundle over HTTP.

With --dev, assets are read from assets_dir (if set) and watched; any change
rebuilds the bundle and reloads connected browsers.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "address to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "development mode: live reload and asset watching")
	rootCmd.AddCommand(serveCmd)

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the CSS bundle and write it to a directory",
		Args:  cobra.NoArgs,
		RunE:  runBuild,
	}
	buildCmd.Flags().StringVarP(&outDir, "out", "o", "dist", "output directory")
	rootCmd.AddCommand(buildCmd)

	linksCmd := &cobra.Command{
		Use:   "links",
		Short: "Print the document's head links as JSON",
		Args:  cobra.NoArgs,
		RunE:  runLinks,
	}
	rootCmd.AddCommand(linksCmd)

	return rootCmd
}

// loadConfig reads the config file, if one was given, and applies flag
// overrides on top of it. Logging is set up from the result, so commands
// should call it before doing anything else.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = listenAddr
	}
	if cmd.Flags().Changed("dev") {
		cfg.Dev = devMode
	}
	logging.Setup(cfg.LogLevel, os.Stderr)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("config", cfgFile).Bool("dev", cfg.Dev).Msg("loaded config")
	return cfg, nil
}
