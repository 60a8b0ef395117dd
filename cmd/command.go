package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qetesh/bratwurstpower/app"
	"github.com/qetesh/bratwurstpower/core/model"
	"github.com/qetesh/bratwurstpower/infra/logger"
	"github.com/qetesh/bratwurstpower/infra/mqtt"
)

var commandCmd = &cobra.Command{
	Use:   "command <pin> <on|off|release>",
	Short: "Send a pin command to the running daemon through the broker",
	Args:  cobra.ExactArgs(2),
	RunE:  runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	pin, value := args[0], args[1]
	if model.ParseAction(value) == model.ActionInvalid {
		return fmt.Errorf("invalid value %q: want on, off or release", value)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker not configured")
	}
	client, err := mqtt.NewClient(cfg.ClientConfig().WithUniqueClientID(), app.Topics(cfg), logger.New("command"), mqtt.Passive())
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.SendCommand(pin, value); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent %s=%s to %s\n", pin, value, app.Topics(cfg).Command())
	return err
}
