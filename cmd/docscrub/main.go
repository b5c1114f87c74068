package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/DocScrub/internal/artifact"
	"github.com/dharsanguruparan/DocScrub/internal/client"
	"github.com/dharsanguruparan/DocScrub/internal/model"
	"github.com/dharsanguruparan/DocScrub/internal/redact"
)

var serverURL string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "docscrub: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docscrub",
		Short: "DocScrub command line",
		Long: `DocScrub replaces text in PDF documents. Use "redact" to process a file locally,
or the submission commands to work against a running server.`,
		SilenceUsage: true,
	}
	defaultServer := os.Getenv("DOCSCRUB_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	cmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "Base URL of the DocScrub server")
	cmd.AddCommand(
		newRedactCmd(),
		newSubmitCmd(),
		newGetCmd(),
		newListCmd(),
		newDownloadCmd(),
		newRateCmd(),
	)
	return cmd
}

func newRedactCmd() *cobra.Command {
	var pairsJSON string
	cmd := &cobra.Command{
		Use:   "redact INPUT OUTPUT",
		Short: "Apply replacements to a local PDF",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := model.ParseReplacements([]byte(pairsJSON))
			if err != nil {
				return err
			}
			count, err := redact.New().ApplyFile(args[0], args[1], pairs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replaced %d occurrence(s), wrote %s\n", count, args[1])
			return nil
		},
	}
	cmd.Flags().StringVarP(&pairsJSON, "replacements", "r", "{}", `Replacements as a JSON object, e.g. '{"Acme":"a company"}'`)
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var (
		pairsJSON string
		wait      bool
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Upload a PDF for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pairs, err := model.ParseReplacements([]byte(pairsJSON))
			if err != nil {
				return err
			}
			c := client.New(serverURL, nil)
			sub, err := c.Submit(ctx, args[0], pairs)
			if err != nil {
				return err
			}
			if wait {
				if sub, err = c.Wait(ctx, sub.ID, interval); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), sub)
		},
	}
	cmd.Flags().StringVarP(&pairsJSON, "replacements", "r", "{}", "Replacements as a JSON object")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until processing finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval used with --wait")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := client.New(serverURL, nil).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sub)
		},
	}
}

func newListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := client.New(serverURL, nil).List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sub := range subs {
				count := "-"
				if sub.ReplacedCount != nil {
					count = strconv.Itoa(*sub.ReplacedCount)
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", sub.ID, sub.CreatedAt.Format(time.RFC3339), sub.Status, count, sub.Filename)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of submissions")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of submissions to skip")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download ID [OUTPUT]",
		Short: "Download the processed PDF",
		Long:  `Writes to OUTPUT, or to <ID>.sanitized.pdf in the current directory when omitted. Use "-" for stdout.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			dest := artifact.OutputName(id)
			if len(args) == 2 {
				dest = args[1]
			}
			c := client.New(serverURL, nil)
			if dest == "-" {
				_, err := c.Download(cmd.Context(), id, cmd.OutOrStdout())
				return err
			}
			f, err := os.CreateTemp(".", ".docscrub-download-*")
			if err != nil {
				return err
			}
			defer os.Remove(f.Name())
			n, err := c.Download(cmd.Context(), id, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if err := os.Rename(f.Name(), dest); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", n, dest)
			return nil
		},
	}
}

func newRateCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "rate ID RATING",
		Short: "Rate a submission from 1 to 5",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("rating must be an integer: %w", err)
			}
			var notePtr *string
			if cmd.Flags().Changed("note") {
				notePtr = &note
			}
			sub, err := client.New(serverURL, nil).Rate(cmd.Context(), args[0], rating, notePtr)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sub)
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "Optional note, up to 500 characters")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
