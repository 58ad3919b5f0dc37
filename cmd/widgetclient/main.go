// Command widgetclient drives the concierge chat widget from a terminal.
//
// Usage:
//
//	widgetclient chat "Do you host weddings?"
//	widgetclient voice --audio question.wav --out reply.pcm
//
// The voice command plays the browser side of /ws/voice: it grants the
// microphone, resumes both audio contexts, streams 16-bit mono PCM (a WAV
// header is skipped) as float32 frames and saves the 24 kHz replies.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serverURL string
	verbose   bool
	logger    *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "widgetclient",
	Short: "Talk to the concierge widget API",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		return err
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "concierge server base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(voiceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
