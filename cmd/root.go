/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ragchat-be",
	Short: "Retrieval-augmented chat backend",
	Long: `ragchat-be serves a browser chat UI backed by retrieval-augmented
generation: a static knowledge document is chunked, embedded and kept in a
Weaviate vector index, and answers are streamed from a hosted language model
grounded on the nearest retrieved chunk.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/config.yaml", "config file")
}
