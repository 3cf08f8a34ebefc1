package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-analyze/engine"
	"github.com/RyanBlaney/sonido-analyze/logging"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file.wav]",
	Short: "Run the streaming analyzers over a WAV file",
	Long: `Decodes a WAV file, streams it through the analysis engine in
fixed-size blocks, and reports the final snapshot of every enabled
analyzer.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Int("block-size", 1024, "samples per processed block")
	analyzeCmd.Flags().Float64("expected-fundamental", 1000.0, "expected THD test tone frequency in Hz")
	analyzeCmd.Flags().Int("harmonics", 5, "number of harmonics for the THD measurement (2-10)")
	analyzeCmd.Flags().StringSlice("disable", nil,
		"analyzers to disable (pitch, tempo, key, harmonics, mfcc, thd)")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := logging.WithFields(logging.Fields{"command": "analyze"})

	samples, sampleRate, channels, err := decodeWAV(args[0])
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", args[0], err)
	}

	logger.Info("decoded input", logging.Fields{
		"file":        args[0],
		"sample_rate": sampleRate,
		"channels":    channels,
		"frames":      len(samples) / channels,
	})

	config := engine.DefaultConfig()
	config.SampleRate = float64(sampleRate)
	config.Channels = channels
	for _, name := range viper.GetStringSlice("disable") {
		switch name {
		case "pitch":
			config.EnablePitch = false
		case "tempo":
			config.EnableTempo = false
		case "key":
			config.EnableKey = false
		case "harmonics":
			config.EnableHarmonics = false
		case "mfcc":
			config.EnableMFCC = false
		case "thd":
			config.EnableTHD = false
		default:
			return fmt.Errorf("unknown analyzer: %s", name)
		}
	}

	eng, err := engine.New(config)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	blockSize := viper.GetInt("block-size")
	if blockSize <= 0 {
		blockSize = 1024
	}
	eng.Prepare(config.SampleRate, blockSize)

	if eng.THD != nil {
		eng.THD.SetExpectedFundamental(viper.GetFloat64("expected-fundamental"))
		eng.THD.SetNumHarmonics(viper.GetInt("harmonics"))
	}

	stride := blockSize * channels
	for start := 0; start < len(samples); start += stride {
		end := min(start+stride, len(samples))
		eng.ProcessBlock(samples[start:end])
	}

	return printSnapshot(eng.Snapshot())
}

// decodeWAV reads a whole WAV file into interleaved float64 samples
// scaled to [-1, 1]
func decodeWAV(path string) ([]float64, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("not a valid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read PCM data: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, 0, 0, fmt.Errorf("missing format information")
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 {
		return nil, 0, 0, fmt.Errorf("unknown bit depth")
	}

	return pcmToFloat(buf, bitDepth), buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// pcmToFloat converts interleaved integer PCM to float64 scaled to [-1, 1]
func pcmToFloat(buf *audio.IntBuffer, bitDepth int) []float64 {
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) * scale
	}
	return samples
}

func printSnapshot(s engine.Snapshot) error {
	if viper.GetString("output_format") == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Printf("Pitch:     %.2f Hz (%s, %+.1f cents, confidence %.2f)\n",
		s.Pitch.Frequency, s.Pitch.NoteName, s.Pitch.Cents, s.Pitch.Confidence)
	fmt.Printf("Tempo:     %.1f BPM (confidence %.2f)\n", s.Tempo.BPM, s.Tempo.Confidence)
	fmt.Printf("Key:       %s (confidence %.2f)\n", s.Key.KeyName, s.Key.Confidence)
	fmt.Printf("Harmonics: f0 %.2f Hz, %d detected, THD %.2f%%\n",
		s.Harmonics.FundamentalFrequency, s.Harmonics.NumHarmonicsDetected, s.Harmonics.THD)
	if s.THD.IsValid {
		fmt.Printf("THD:       %.3f%%  THD+N %.3f%%  SNR %.1f dB  SINAD %.1f dB (f0 %.2f Hz)\n",
			s.THD.THD, s.THD.THDPlusNoise, s.THD.SNR, s.THD.SINAD, s.THD.FundamentalFrequency)
	}
	if s.MFCC.IsValid {
		fmt.Printf("MFCC:      c1..c4 = %.2f %.2f %.2f %.2f (energy %.2f)\n",
			s.MFCC.Coefficients[1], s.MFCC.Coefficients[2],
			s.MFCC.Coefficients[3], s.MFCC.Coefficients[4], s.MFCC.TotalEnergy)
	}
	return nil
}
