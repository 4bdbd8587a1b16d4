package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/devpoll"
)

// sendCmd issues a single command and prints the reply.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one command and print the reply",
	Long: `Send one command to the device through the polling queue and print the
response body, or selected XML fields from it.

Example:
  devpoll send -u http://192.168.1.10/status.xml -f CDS -f ZONE
  devpoll send -u http://192.168.1.10/cmd -d "CMD=RESET" --timeout 5s`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringP("url", "u", "", "command URL (required)")
	sendCmd.Flags().StringP("data", "d", "", "request payload")
	sendCmd.Flags().StringSliceP("field", "f", nil, "XML field to print instead of the whole body (repeatable)")
	sendCmd.Flags().Duration("timeout", 5*time.Second, "how long to wait for the reply")
	_ = sendCmd.MarkFlagRequired("url")
}

func runSend(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	rawURL, _ := cmd.Flags().GetString("url")
	payload, _ := cmd.Flags().GetString("data")
	fields, _ := cmd.Flags().GetStringSlice("field")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	// validates the URL the same way configured commands are
	if _, err := devpoll.NewCommand(rawURL, devpoll.WithHandler(func(*devpoll.Body) {})); err != nil {
		return err
	}

	q, err := devpoll.New(
		devpoll.WithTimeout(timeout),
		devpoll.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	results := make(chan devpoll.Result, 1)
	q.Issue(rawURL, devpoll.ResultFunc(func(r devpoll.Result) {
		results <- r
	}), false, payload)

	runCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return q.Start(gctx)
	})

	g.Go(func() error {
		defer cancel()
		select {
		case r := <-results:
			return printResult(cmd, r, fields)
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	return g.Wait()
}

func printResult(cmd *cobra.Command, r devpoll.Result, fields []string) error {
	if !r.OK {
		return fmt.Errorf("command failed after %s: %w", r.Elapsed.Round(time.Millisecond), r.Err)
	}

	out := cmd.OutOrStdout()
	if len(fields) == 0 {
		fmt.Fprintln(out, r.Body.Text())
		return nil
	}

	values := devpoll.ExtractFields(r.Body, fields...)
	for _, name := range fields {
		v, ok := values[name]
		if !ok {
			fmt.Fprintf(out, "%s: (missing)\n", name)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", name, v)
	}
	return nil
}
