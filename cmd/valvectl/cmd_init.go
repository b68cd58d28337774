package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var initPins []int

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Drive every configured pin to its safe level",
	Long: `Init configures the pins listed in gpio.pins (or --pins) as outputs at
the safe (inactive) level and exits. Pins are not released afterwards, so
relays stay off across reboots of the controller process.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().IntSliceVar(&initPins, "pins", nil, "Override gpio.pins")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	pins := cfg.GPIO.Pins
	if len(initPins) > 0 {
		pins = initPins
	}
	if len(pins) == 0 {
		return errors.New("no pins configured (set gpio.pins or --pins)")
	}

	// init only touches pins; history and metrics stay closed.
	cfg.Database.Enabled = false
	cfg.InfluxDB.Enabled = false

	st, err := openStack(cmd.Context(), cfg, log, stackOptions{})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.driver.Setup(cmd.Context(), pins); err != nil {
		return fmt.Errorf("initialising pins: %w", err)
	}

	log.Info("pins initialised at safe level", "pins", pins, "active_low", cfg.GPIO.ActiveLow)
	fmt.Fprintf(cmd.OutOrStdout(), "Initialised %d pin(s) at safe level.\n", len(pins))
	return nil
}
