// Shellguard is an MCP server that runs shell commands and file operations
// confined to a whitelist of approved directories.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jkaninda/shellguard/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shellguard [dir...]",
	Short: "Shellguard: sandboxed shell and file access for MCP clients.",
	Long: `Shellguard speaks the Model Context Protocol over stdio and exposes tools
that execute commands, manage interactive sessions and operate on files.
Every path is confined to a persistent whitelist of approved directories.
Directories given as arguments are added to the whitelist at startup.`,
	Args:          cobra.ArbitraryArgs,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	_ = godotenv.Load()
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
	rootCmd.AddCommand(serveCmd, whitelistCmd, classifyCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
