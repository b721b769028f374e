package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "formctl",
	Short: "formctl is a command line tool for interacting with the formplane API",
	Long: `formctl is the command-line interface for formplane.

formplane turns form submissions into containers. Every submission becomes an
entity whose container is created, renamed and removed by a reconciler that
runs behind the API, so every write returns before the container changes.

Common workflows:

  Submit a form:
    formctl create --name alice --email alice@example.com --age 30

  List submissions:
    formctl list

  Rename the container of a submission:
    formctl update <entity-id> --name alicia

  Follow reconciliation until it settles:
    formctl status <entity-id> --watch

  Re-drive a failed entity:
    formctl retry <entity-id>

Configuration:
  Set the API endpoint and credentials via flags, environment variables or a config file:
    FORMPLANE_URL      API endpoint (default: http://localhost:6161)
    FORMPLANE_TOKEN    API token for mutating requests`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".formctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".formctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "FORMPLANE_VARNAME"
	viper.SetEnvPrefix("FORMPLANE")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func newClient() *EntityClient {
	return NewEntityClient(viper.GetString("url"), viper.GetString("token"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.formctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "formplane controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API token for mutating requests")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
