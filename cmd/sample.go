package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c"

	"github.com/qetesh/bratwurstpower/app"
	"github.com/qetesh/bratwurstpower/infra/hw"
)

// openBus is replaced in tests.
var openBus = func(name string) (i2c.BusCloser, error) { return hw.OpenBus(name) }

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Read all sensors and pins once and print the result as JSON",
	Long: "Read all sensors and pins once and print the result as JSON.\n" +
		"Nothing is written to the hardware, so this is safe next to a running daemon.",
	Args: cobra.NoArgs,
	RunE: runSample,
}

func init() {
	rootCmd.AddCommand(sampleCmd)
}

func runSample(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	bus, err := openBus(cfg.I2C.Bus)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	snap, err := app.Inspect(cfg, bus)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(struct {
		PowerStats any `json:"powerstats"`
		PinStates  any `json:"pinstates"`
	}{snap.Power, snap.Pins}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
