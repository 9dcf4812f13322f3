package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/auth"
	"ncfpos/internal/domain/sequence"
)

// Exit codes.
const (
	ExitDrift        = 1 // audit found counters behind history
	ExitCommandError = 2
)

// ExitError carries a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// Sequences is the part of the allocator the CLI drives.
type Sequences interface {
	Provision(ctx context.Context, storeID id.ID, invoiceTypes []string, initial int64) ([]*numerator.Counter, error)
	SetCounter(ctx context.Context, key numerator.Key, value int64) (*numerator.Counter, error)
	Reconcile(ctx context.Context, storeID id.ID) (*sequence.ReconcileReport, error)
}

// TokenIssuer signs terminal tokens.
type TokenIssuer interface {
	GenerateToken(req auth.TokenRequest) (string, time.Time, error)
}

// Backend opens the dependencies lazily so --help works without a database.
type Backend struct {
	Sequences func(ctx context.Context) (Sequences, func(), error)
	Tokens    func() (TokenIssuer, error)
}

type rootOptions struct {
	Format  string
	backend Backend
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the provision command tree.
func NewRootCommand(backend Backend) *cobra.Command {
	opts := &rootOptions{backend: backend}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Manage NCF invoice counters",
		Long: `Provision and audit the NCF invoice counters of a store.

Configuration is read from config.yaml and NCFPOS_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newStoreCommand(opts))
	cmd.AddCommand(newSetCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}

// withSequences opens the allocator for the duration of fn.
func (o *rootOptions) withSequences(ctx context.Context, fn func(Sequences) error) error {
	seq, closeFn, err := o.backend.Sequences(ctx)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: err.Error()}
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(seq)
}

// print writes v as JSON, or runs text when the format is text.
func (o *rootOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func parseStoreID(raw string) (id.ID, error) {
	storeID, err := id.Parse(raw)
	if err != nil || id.IsNil(storeID) {
		return id.ID{}, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid store id %q", raw)}
	}
	return storeID, nil
}
