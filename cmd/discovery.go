package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qetesh/bratwurstpower/app"
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Print the Home Assistant discovery messages",
	Args:  cobra.NoArgs,
	RunE:  runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	msgs, err := app.DiscoveryMessages(cfg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, m := range msgs {
		if err := enc.Encode(struct {
			Topic   string          `json:"topic"`
			Payload json.RawMessage `json:"payload"`
		}{m.Topic, m.Payload}); err != nil {
			return err
		}
	}
	return nil
}
