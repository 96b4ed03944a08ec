// Command authkit runs the token service and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

type globalFlags struct {
	configPath string
	dotenvPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "authkit",
		Short:         "Token issuance, refresh rotation and MFA service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", envOr("AUTHKIT_CONFIG", ""), "YAML config file (env AUTHKIT_CONFIG)")
	root.PersistentFlags().StringVar(&g.dotenvPath, "env-file", ".env", "optional .env file loaded before overrides")

	root.AddCommand(newServeCmd(g))
	root.AddCommand(newMigrateCmd(g))
	root.AddCommand(newHashPasswordCmd(g))
	root.AddCommand(newCreateUserCmd(g))
	root.AddCommand(newKeygenCmd())
	root.AddCommand(newBenchCmd())
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
