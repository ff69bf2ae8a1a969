package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/franz/xeenaps-tracer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "xtr",
		Short: "Xeenaps Tracer - research library and project tracer",
		Long: `xtr manages a research library and the projects traced against it.
It opens library items with optimistic bookmark, favorite and insight
updates, extracts and saves quotes into tracer references, and keeps
project journals, todos and finance ledgers in a local database that
mirrors the remote gateway.`,
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetColors(util.ColorsEnabled())
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/xtr.yaml)")
	rootCmd.PersistentFlags().String("db", "xtr.db", "local library database file")
	rootCmd.PersistentFlags().String("gateway", "", "gateway URL (overrides gateway.url)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("gateway.url", rootCmd.PersistentFlags().Lookup("gateway"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("xtr")
		viper.SetConfigType("yaml")
	}

	// XTR_GATEWAY_URL maps onto gateway.url
	viper.SetEnvPrefix("XTR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	err := rootCmd.Execute()
	util.SyncLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
