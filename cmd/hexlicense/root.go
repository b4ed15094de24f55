package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hexrift/hexlicense-sdk/hexlicense"
	"github.com/hexrift/hexlicense-sdk/hexlicense/journal"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	errValidationFailed = errors.New("license validation failed")
	errNoJournal        = errors.New("no journal configured: set --journal or HEXLICENSE_JOURNAL_URL")
)

type rootOptions struct {
	configPath string
	licenseKey string
	apiURL     string
	cacheDir   string
	journalURL string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "hexlicense",
		Short: "Validate a Hex license on this machine",
		Long: `hexlicense checks a license key against the license authority.

When the authority cannot be reached, the last successful verdict cached on
this machine is accepted for up to 7 days.

Configuration is read from --config (YAML), then HEXLICENSE_* environment
variables, then flags.`,
		Version:      Version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.licenseKey, "license-key", "", "License key (overrides HEXLICENSE_LICENSE_KEY)")
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "License authority base URL")
	root.PersistentFlags().StringVar(&opts.cacheDir, "cache-dir", "", "Offline cache directory (default: ~/.hexlicense)")
	root.PersistentFlags().StringVar(&opts.journalURL, "journal", "", "Verdict journal URL (postgres://, mongodb://)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newValidateCmd(opts),
		newFingerprintCmd(),
		newClearCacheCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the license and print a summary",
		Long: `Validate the configured license key.

Exits non-zero when the license is invalid or no acceptable cached verdict exists.

Examples:
  hexlicense validate --license-key XXXX-YYYY-ZZZZ
  HEXLICENSE_LICENSE_KEY=XXXX-YYYY-ZZZZ hexlicense validate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			var mopts []hexlicense.ManagerOption
			if cfg.JournalURL != "" {
				j, err := journal.Open(cmd.Context(), cfg.JournalURL)
				if err != nil {
					return err
				}
				defer j.Close(cmd.Context())
				mopts = append(mopts, hexlicense.WithJournal(j))
			}
			m, err := opts.manager(cmd, cfg, mopts...)
			if err != nil {
				return err
			}
			out := m.Validate(cmd.Context())
			if err := m.WriteSummary(cmd.OutOrStdout()); err != nil {
				return err
			}
			if !out.Valid() {
				return fmt.Errorf("%w: %s", errValidationFailed, out)
			}
			return nil
		},
	}
}

func newFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print this machine's hardware fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), hexlicense.GenerateFingerprint())
			return err
		},
	}
}

func newClearCacheCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove the offline license cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			m, err := opts.manager(cmd, cfg)
			if err != nil {
				return err
			}
			if err := m.ClearCache(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", m.CachePath())
			return err
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled validations for this machine, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if cfg.JournalURL == "" {
				return errNoJournal
			}
			m, err := opts.manager(cmd, cfg)
			if err != nil {
				return err
			}
			j, err := journal.Open(cmd.Context(), cfg.JournalURL)
			if err != nil {
				return err
			}
			defer j.Close(cmd.Context())

			entries, err := j.List(cmd.Context(), m.Fingerprint(), limit)
			if err != nil {
				return err
			}
			return writeHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	return cmd
}

func writeHistory(w io.Writer, entries []journal.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No validations recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tOUTCOME\tREASON\tOWNER\tEXPIRES")
	for _, e := range entries {
		expires := "never"
		if e.ExpiresAt != nil {
			expires = e.ExpiresAt.Format("2006-01-02")
		}
		owner := e.Owner
		if owner == "" {
			owner = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.RecordedAt.Format(time.RFC3339), e.Outcome, e.Reason, owner, expires)
	}
	return tw.Flush()
}

// config loads file and environment settings, then applies flag overrides.
func (o *rootOptions) config() (hexlicense.Config, error) {
	cfg, err := hexlicense.LoadConfig(o.configPath)
	if err != nil {
		return hexlicense.Config{}, err
	}
	if o.licenseKey != "" {
		cfg.LicenseKey = o.licenseKey
	}
	if o.apiURL != "" {
		cfg.APIURL = o.apiURL
	}
	if o.cacheDir != "" {
		cfg.CacheDir = o.cacheDir
	}
	if o.journalURL != "" {
		cfg.JournalURL = o.journalURL
	}
	return cfg, nil
}

// manager builds a Manager logging to stderr.
func (o *rootOptions) manager(cmd *cobra.Command, cfg hexlicense.Config, opts ...hexlicense.ManagerOption) (*hexlicense.Manager, error) {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts = append([]hexlicense.ManagerOption{hexlicense.WithLogger(logger.With("component", "hexlicense"))}, opts...)
	return hexlicense.NewManager(cfg, opts...)
}
