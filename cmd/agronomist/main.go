package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harunnryd/agronomist/pkg/agronomist"
	"github.com/harunnryd/agronomist/pkg/runner"
	"github.com/harunnryd/agronomist/pkg/triage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "agronomist",
		Short: "Crop triage assistant for farmers",
		Long: `Agronomist turns a crop photo and a spoken or written description into
short, practical advice with a spoken answer. It gives general guidance
only; farmers should confirm with a local agronomist.`,
		Version:       runner.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(&configPath), newTriageCmd(&configPath), newVersionCmd())
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var drainTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload form and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := agronomist.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			app, err := agronomist.Build(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := runner.NewLifecycleRunner(app, runner.Hooks{
				OnStart: app.Start,
				OnStop: func() {
					app.Log.Info("agronomist stopped")
					_ = app.Close()
				},
			}, drainTimeout).WithLogger(app.Log)
			return r.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 15*time.Second, "time allowed for in-flight requests on shutdown")
	return cmd
}

type triageFlags struct {
	image       string
	description string
	audio       string
	lat         float64
	lon         float64
	asJSON      bool
}

func newTriageCmd(configPath *string) *cobra.Command {
	var f triageFlags
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Analyze one crop photo offline and print the advice",
		Example: `  agronomist triage --image leaf.jpg --description "brown spots on tomato leaves"
  agronomist triage --image leaf.jpg --audio question.wav --lat -1.29 --lon 36.82 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := agronomist.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			cfg.Log.File = ""
			if !cfg.Log.Debug {
				cfg.Log.Level = "warn"
			}
			app, err := agronomist.Build(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			req, err := f.request(cmd)
			if err != nil {
				return err
			}
			resp := app.Triager.HandleRequest(cmd.Context(), req)
			return printResponse(cmd, resp, f.asJSON)
		},
	}
	cmd.Flags().StringVar(&f.image, "image", "", "crop photo to analyze")
	cmd.Flags().StringVar(&f.description, "description", "", "what the farmer sees")
	cmd.Flags().StringVar(&f.audio, "audio", "", "recorded question, used when no description is given")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "farm latitude")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "farm longitude")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the full response as JSON")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
	return cmd
}

func (f triageFlags) request(cmd *cobra.Command) (triage.Request, error) {
	req := triage.Request{ImagePath: f.image, Description: f.description}
	if f.audio != "" {
		data, err := os.ReadFile(f.audio)
		if err != nil {
			return req, fmt.Errorf("read audio: %w", err)
		}
		req.Audio = data
		req.AudioName = filepath.Base(f.audio)
	}
	if cmd.Flags().Changed("lat") {
		req.Location = &triage.Location{Lat: f.lat, Lon: f.lon}
	}
	return req, nil
}

func printResponse(cmd *cobra.Command, resp triage.Response, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else if resp.Error != nil {
		fmt.Fprintln(out, resp.Error.Message)
	} else {
		fmt.Fprintln(out, resp.Detection)
		fmt.Fprintf(out, "Escalation: %s\n", resp.Escalation.Level)
		for _, risk := range resp.WeatherRisks {
			fmt.Fprintf(out, "Weather risk: %s\n", risk)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, resp.AdvisoryText)
		if resp.AudioPath != "" {
			fmt.Fprintf(out, "\nSpoken advice: %s\n", resp.AudioPath)
		}
		if len(resp.Tiers) > 0 {
			parts := make([]string, 0, len(resp.Tiers))
			for _, chain := range []string{"stt", "llm", "tts"} {
				if name, ok := resp.Tiers[chain]; ok {
					parts = append(parts, chain+"="+name)
				}
			}
			fmt.Fprintf(out, "Providers: %s\n", strings.Join(parts, " "))
		}
	}
	if resp.Error != nil {
		return errors.New(string(resp.Error.Code))
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agronomist %s\n", runner.Version)
		},
	}
}

