// Package commands implements the atelier CLI.
package commands

import (
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/pkg/atelier"
)

var (
	apiURL   string
	apiKey   string
	cfgFile  string
	verbose  bool
	jsonMode bool
)

var rootCmd = &cobra.Command{
	Use:   "atelier",
	Short: "Atelier - document analysis and diagram studio",
	Long: `Atelier turns technical documents into conversational analysis and
editable diagrams. Upload PDFs or images into a session, analyze them
with a multimodal model, chat about the content, and export blueprint
and workflow renderings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			return godotenv.Load(cfgFile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API server address (default from ATELIER_API_URL)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (default from ATELIER_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "env file to load before resolving settings")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonMode, "json", false, "emit machine-readable JSON output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// client builds the API client from flags and environment.
func client() *atelier.Client {
	var opts []atelier.Option
	if apiURL != "" {
		opts = append(opts, atelier.WithBaseURL(apiURL))
	}
	if apiKey != "" {
		opts = append(opts, atelier.WithAPIKey(apiKey))
	}
	return atelier.NewClient(opts...)
}

// printJSON emits v as indented JSON on stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
