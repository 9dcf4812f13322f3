package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/auth"
	"ncfpos/internal/domain/sequence"
)

func newStoreCommand(opts *rootOptions) *cobra.Command {
	var (
		types   []string
		initial int64
	)

	cmd := &cobra.Command{
		Use:   "store <store-id>",
		Short: "Create the counter rows of a store",
		Long: `Create missing counter rows for the given invoice types. Existing rows
are left untouched. A new row starts at --initial or at the highest number
already recorded in sales, whichever is greater.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeID, err := parseStoreID(args[0])
			if err != nil {
				return err
			}
			for i, t := range types {
				types[i] = strings.ToUpper(strings.TrimSpace(t))
			}

			return opts.withSequences(cmd.Context(), func(seq Sequences) error {
				counters, err := seq.Provision(cmd.Context(), storeID, types, initial)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), counters, func(w io.Writer) {
					printCounters(w, counters)
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&types, "types", nil, "invoice types, e.g. B01,B02 (default: all standard types)")
	cmd.Flags().Int64Var(&initial, "initial", 0, "last number already issued outside this system")

	return cmd
}

func newSetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <store-id> <type> <value>",
		Short: "Override the last issued number of a counter",
		Long: `Override the last issued number. Values below the highest number already
recorded in sales are rejected.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeID, err := parseStoreID(args[0])
			if err != nil {
				return err
			}
			value, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid value %q", args[2])}
			}
			key := numerator.Key{StoreID: storeID, InvoiceType: strings.ToUpper(args[1])}

			return opts.withSequences(cmd.Context(), func(seq Sequences) error {
				counter, err := seq.SetCounter(cmd.Context(), key, value)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), counter, func(w io.Writer) {
					printCounters(w, []*numerator.Counter{counter})
				})
			})
		},
	}
}

func newAuditCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <store-id>",
		Short: "Compare counters with sales history",
		Long: `Report counters sitting below the highest invoice number recorded in
sales. Exits with status 1 when any counter is behind.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeID, err := parseStoreID(args[0])
			if err != nil {
				return err
			}

			return opts.withSequences(cmd.Context(), func(seq Sequences) error {
				report, err := seq.Reconcile(cmd.Context(), storeID)
				if err != nil {
					return err
				}
				if err := opts.print(cmd.OutOrStdout(), report, func(w io.Writer) {
					printReport(w, report)
				}); err != nil {
					return err
				}
				if !report.Healthy() {
					return &ExitError{
						Code:    ExitDrift,
						Message: fmt.Sprintf("%d counter(s) behind sales history", len(report.Behind)),
					}
				}
				return nil
			})
		},
	}
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		user   string
		email  string
		roles  []string
		stores []string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a terminal or user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issuer, err := opts.backend.Tokens()
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: err.Error()}
			}
			token, expiresAt, err := issuer.GenerateToken(auth.TokenRequest{
				UserID:   user,
				Email:    email,
				Roles:    roles,
				StoreIDs: stores,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			out := map[string]any{"token": token, "expires_at": expiresAt.UTC()}
			return opts.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user or terminal id (required)")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringSliceVar(&roles, "roles", []string{"cashier"}, "roles, e.g. cashier,admin")
	cmd.Flags().StringSliceVar(&stores, "stores", nil, "store ids the token may bill for; * for all")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from auth config)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func printCounters(w io.Writer, counters []*numerator.Counter) {
	fmt.Fprintf(w, "%-6s %14s  %s\n", "TYPE", "CURRENT", "NEXT")
	for _, c := range counters {
		fmt.Fprintf(w, "%-6s %14d  %s\n", c.InvoiceType, c.CurrentNumber, c.Next())
	}
}

func printReport(w io.Writer, r *sequence.ReconcileReport) {
	fmt.Fprintf(w, "store %s: %d counter(s) checked\n", r.StoreID, r.Checked)
	if r.Healthy() {
		fmt.Fprintln(w, "all counters ahead of sales history")
		return
	}
	for _, d := range r.Behind {
		fmt.Fprintf(w, "BEHIND %s current=%d max_historical=%d (set to at least %d)\n",
			d.InvoiceType, d.CurrentNumber, d.MaxHistorical, d.MaxHistorical)
	}
}
