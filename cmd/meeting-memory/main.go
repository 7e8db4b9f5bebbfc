package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/app"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:          "meeting-memory",
		Short:        "Turns meeting transcripts into commitments and reminds people about them",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newServeCmd(), newRemindCmd(), newExtractCmd(), newGmailTokenCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			logrus.Info("Starting Meeting Memory")

			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}
}

func newRemindCmd() *cobra.Command {
	var (
		date   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run the reminder cadence once and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			var target *civil.Date
			if date != "" {
				d, err := civil.ParseDate(date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				target = &d
			}

			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.RunReminders(cmd.Context(), target, dryRun)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "target date as YYYY-MM-DD (default today in the reminder timezone)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record reminders without sending mail")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var (
		file string
		ref  string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract commitments from a transcript file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			refTime := time.Now()
			if ref != "" {
				t, err := time.Parse(time.RFC3339, ref)
				if err != nil {
					return fmt.Errorf("invalid --ref %q: %w", ref, err)
				}
				refTime = t
			}

			var r io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			text, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("failed to read transcript: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(commitment.Extract(string(text), refTime))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "transcript file (default stdin)")
	cmd.Flags().StringVar(&ref, "ref", "", "reference time as RFC 3339 (default now)")
	return cmd
}
