// Package cmd is the fluxrag CLI (spec.md's ambient stack), styled after
// the teacher's cmd/root.go: a spf13/cobra root command, persistent config
// init via viper, colorized output via fatih/color.
package cmd

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "fluxrag",
		Short: "Plugin runtime and task engine for retrieval/ingestion pipelines",
		Long: `fluxrag hosts a plugin runtime (Morpheus: discovery, activation,
priority-ordered hook pipelines) and a task engine (FluxCapacitor/Agent:
synchronous and asynchronous work-tree execution) behind a capability-aware
query validator and a uniform result envelope.

Concrete repository, embedder, and retrieval backends are plugins; this
binary only hosts and drives them.`,

		Example: `  # List discovered plugins
  fluxrag plugin list

  # Activate a plugin (collects its hooks, runs its activated hook)
  fluxrag plugin activate my-plugin

  # Show the resolved configuration surface
  fluxrag config show`,

		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fluxrag/config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(newPluginCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig mirrors the teacher's cmd/root.go initConfig, rooted at
// ~/.fluxrag instead of ~/.seaweed-up (spec.md §6's configuration surface
// is read through internal/spock, which applies the same viper precedence
// for library callers; this package-level viper instance only backs CLI
// flag binding).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home + "/.fluxrag/config")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("FLUXRAG")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "error reading config file: %v\n", err)
			os.Exit(1)
		}
	} else if verbose {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}
