// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	genConfFile  bool
	genConfForce bool
)

var rootCmd = &cobra.Command{
	Use:   "shadowwire-server",
	Short: "shadowwire-server runs the encrypted messaging TCP server",
	Long: `shadowwire-server accepts TCP connections, negotiates a per-connection
Diffie-Hellman session key, and dispatches AEAD-sealed requests against
an encrypted-at-rest account/chat/message store.`,
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML/JSON config file")
	rootCmd.Flags().BoolVarP(&genConfFile, "gen_conf_file", "i", false, "write a default config file to --config and exit")
	rootCmd.Flags().BoolVar(&genConfForce, "force", false, "overwrite --config if it already exists when used with --gen_conf_file")
}
