// Package cmd provides the CLI commands for aisafegate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aisafe-dev/aisafegate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "aisafegate",
	Short: "aisafegate - LLM safety proxy",
	Long: `aisafegate is a safety proxy for OpenAI-compatible LLM APIs.

It scans prompts and responses with a tiered scanner pipeline (PII,
prompt injection, jailbreak, toxicity, malicious URLs, banned topics),
enforces per-scanner policies, rate limits per identity, and tracks
token spend, all without changes to the calling application.

Quick start:
  1. Create a config file: aisafegate init
  2. Export your upstream key: export AISAFEGATE_UPSTREAM_API_KEY=sk-...
  3. Run: aisafegate serve
  4. Point your OpenAI client base URL at http://127.0.0.1:8686/v1

Configuration:
  Config is loaded from aisafegate.yaml in the current directory,
  $HOME/.aisafegate/, or /etc/aisafegate/.

  Environment variables can override config values with the AISAFEGATE_ prefix.
  Example: AISAFEGATE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the proxy server
  stop        Stop the running proxy server
  scan        Scan a text one-shot without forwarding
  init        Write a default aisafegate.yaml
  hash-key    Generate a key hash for the auth config
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./aisafegate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
