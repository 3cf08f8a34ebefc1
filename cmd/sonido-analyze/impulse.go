package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-analyze/analyzers/impulse"
	"github.com/RyanBlaney/sonido-analyze/logging"
)

var impulseCmd = &cobra.Command{
	Use:   "impulse",
	Short: "Run a loop-back impulse response measurement",
	Long: `Generates an exponential sine sweep and feeds it straight back into
the measurer, then reports the deconvolved impulse response, RT60, and
frequency response summary.

This is a self-test mode: without external routing the measured system
is an ideal wire, so the result should be a near-perfect impulse.`,
	RunE: runImpulse,
}

func init() {
	impulseCmd.Flags().Float64("duration", 3.0, "sweep duration in seconds")
	impulseCmd.Flags().Float64("start-freq", 20.0, "sweep start frequency in Hz")
	impulseCmd.Flags().Float64("end-freq", 20000.0, "sweep end frequency in Hz")
	impulseCmd.Flags().Float64("amplitude", 0.5, "sweep amplitude (0-1)")
	impulseCmd.Flags().Float64("sample-rate", 44100.0, "sample rate in Hz")

	rootCmd.AddCommand(impulseCmd)
}

func runImpulse(cmd *cobra.Command, args []string) error {
	logger := logging.WithFields(logging.Fields{"command": "impulse"})

	measurer := impulse.NewMeasurer(viper.GetFloat64("sample-rate"))
	measurer.SetSweepDuration(viper.GetFloat64("duration"))
	measurer.SetFrequencyRange(viper.GetFloat64("start-freq"), viper.GetFloat64("end-freq"))
	measurer.SetAmplitude(viper.GetFloat64("amplitude"))

	measurer.StartMeasurement()

	// Loop-back: each output sample becomes the next input sample
	input := 0.0
	for measurer.State() == impulse.StateGeneratingSweep {
		input = measurer.ProcessSample(input)
	}

	logger.Info("capture finished, processing", logging.Fields{
		"progress": measurer.Progress(),
	})

	deadline := time.Now().Add(30 * time.Second)
	for measurer.State() == impulse.StateProcessing {
		if time.Now().After(deadline) {
			return fmt.Errorf("processing timed out")
		}
		time.Sleep(50 * time.Millisecond)
	}

	result := measurer.Latest()
	if !result.IsValid {
		return fmt.Errorf("measurement produced no valid impulse response")
	}

	if viper.GetString("output_format") == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Peak level: %.1f dB\n", result.PeakLevel)
	fmt.Printf("RT60:       %.3f s\n", result.RT60)
	fmt.Printf("IR length:  %d samples\n", len(result.ImpulseResponse))
	fmt.Printf("FR bins:    %d\n", len(result.Frequencies))
	return nil
}
