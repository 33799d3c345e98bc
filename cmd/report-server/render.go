package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/clinicreport/internal/config"
	"github.com/ehr/clinicreport/internal/platform/report"
)

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a report from a JSON input document",
		Long: "Render reads a JSON document with patient, consultation and segments\n" +
			"and writes the PDF. Use --now to pin the generation time for\n" +
			"byte-identical output.",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")
			now, _ := cmd.Flags().GetString("now")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			reportCfg, err := cfg.ReportConfig()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg)

			res, err := renderFile(cmd.Context(), reportCfg, input, output, now, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d page(s), %d bytes)\n", output, res.Pages, len(res.PDF))
			return nil
		},
	}
	cmd.Flags().String("input", "-", "Input JSON file, - for stdin")
	cmd.Flags().String("output", "report.pdf", "Output PDF path")
	cmd.Flags().String("now", "", "Generation time in RFC 3339, defaults to the current time")
	return cmd
}

func renderFile(ctx context.Context, cfg report.Config, inputPath, outputPath, now string, logger zerolog.Logger) (*report.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	in, err := readInput(inputPath)
	if err != nil {
		return nil, err
	}

	opts := []report.Option{report.WithLogger(logger)}
	if now != "" {
		at, err := time.Parse(time.RFC3339, now)
		if err != nil {
			return nil, fmt.Errorf("--now: %w", err)
		}
		opts = append(opts, report.WithClock(func() time.Time { return at }))
	}

	res, err := report.NewGenerator(cfg, opts...).Generate(ctx, *in)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, res.PDF, 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", outputPath, err)
	}
	return res, nil
}

func readInput(path string) (*report.Input, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var in report.Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return &in, nil
}
