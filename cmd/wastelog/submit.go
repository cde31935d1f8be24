package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hdjv-envi/wastelog/pkg/statestore"
	"github.com/hdjv-envi/wastelog/pkg/submit"
)

var (
	submitSite     string
	submitDate     string
	submitWaste    string
	submitPhoto    string
	submitVolume   string
	submitLocation int
	submitSaveSite bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit waste records",
}

var submitHazardousCmd = &cobra.Command{
	Use:   "hazardous",
	Short: "Submit a hazardous waste record",
	RunE:  runSubmitHazardous,
}

var submitSolidCmd = &cobra.Command{
	Use:   "solid",
	Short: "Submit a solid waste record",
	RunE:  runSubmitSolid,
}

var submitBatchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Submit a batch of records from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmitBatch,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.AddCommand(submitHazardousCmd)
	submitCmd.AddCommand(submitSolidCmd)
	submitCmd.AddCommand(submitBatchCmd)

	for _, c := range []*cobra.Command{submitHazardousCmd, submitSolidCmd} {
		c.Flags().StringVar(&submitSite, "site", "", "site (package) ID")
		c.Flags().StringVar(&submitDate, "date", "", "record date (YYYY-MM-DD)")
		c.Flags().StringVar(&submitWaste, "waste", "", "waste name")
		c.Flags().StringVar(&submitPhoto, "photo", "", "path to the photo file")
		c.Flags().BoolVar(&submitSaveSite, "save-site", false,
			"remember this site as the default")
	}

	submitHazardousCmd.Flags().StringVar(&submitVolume, "volume", "",
		"volume in m3")
	submitSolidCmd.Flags().IntVar(&submitLocation, "location", 0,
		fmt.Sprintf("pile location number (%d-%d)",
			submit.MinSolidLocation, submit.MaxSolidLocation))
}

func runSubmitHazardous(cmd *cobra.Command, args []string) error {
	return submitOne(cmd.Context(), func(site string) submit.Entry {
		return submit.NewHazardousEntry(
			site, submitDate, submitVolume, submitWaste, submitPhoto,
		)
	})
}

func runSubmitSolid(cmd *cobra.Command, args []string) error {
	return submitOne(cmd.Context(), func(site string) submit.Entry {
		return submit.NewSolidEntry(
			site, submitDate, submitLocation, submitWaste, submitPhoto,
		)
	})
}

func submitOne(ctx context.Context, build func(site string) submit.Entry) error {
	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.requireAuth(); err != nil {
		return err
	}

	site, err := resolveSite(ctx, a)
	if err != nil {
		return err
	}

	result, err := a.submitter().Submit(ctx, build(site))
	if err != nil {
		return describeSubmitError(err)
	}

	reportResult(result)

	return nil
}

func runSubmitBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.requireAuth(); err != nil {
		return err
	}

	entries, err := submit.LoadBatch(args[0])
	if err != nil {
		return fmt.Errorf("loading batch file: %w", err)
	}

	results, errs := a.submitter().SubmitBatch(ctx, entries)

	for _, result := range results {
		reportResult(result)
	}

	var failed int

	for _, err := range errs {
		if err != nil {
			log.WithError(describeSubmitError(err)).Warn("Entry failed")

			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed", failed, len(entries))
	}

	return nil
}

// resolveSite returns the --site flag value, falling back to the saved
// default. With --save-site the chosen site becomes the new default.
func resolveSite(ctx context.Context, a *app) (string, error) {
	site := submitSite

	if site == "" {
		saved, err := a.store.GetPreference(ctx, statestore.PrefDefaultSite)
		if err != nil {
			return "", fmt.Errorf("reading default site: %w", err)
		}

		if saved == "" {
			return "", fmt.Errorf("--site is required (no default site saved)")
		}

		site = saved
	}

	if _, ok := a.cfg.Site(site); !ok {
		return "", fmt.Errorf("unknown site %q (not in configuration)", site)
	}

	if submitSaveSite {
		if err := a.store.SetPreference(ctx, statestore.PrefDefaultSite, site); err != nil {
			return "", fmt.Errorf("saving default site: %w", err)
		}
	}

	return site, nil
}

func reportResult(result *submit.Result) {
	entry := log.WithField("fingerprint", result.Fingerprint).
		WithField("request_id", result.RequestID)

	if result.Duplicate {
		entry.Info("Record already saved by an earlier attempt")
	} else {
		entry.Info("Record submitted")
	}
}

// describeSubmitError maps pipeline errors to operator-facing messages.
func describeSubmitError(err error) error {
	var already *submit.AlreadySubmittedError
	if errors.As(err, &already) {
		return fmt.Errorf(
			"already submitted %d hours ago; duplicates clear after 24h", already.HoursSince,
		)
	}

	if errors.Is(err, submit.ErrInProgress) {
		return fmt.Errorf("an identical submission is already in flight")
	}

	var ambiguous *submit.AmbiguousOutcomeError
	if errors.As(err, &ambiguous) {
		return fmt.Errorf(
			"upload outcome unknown, retry after the cooldown: %w", ambiguous.Cause,
		)
	}

	return err
}
