package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/hdjv-envi/wastelog/pkg/dedup"
	"github.com/hdjv-envi/wastelog/pkg/history"
)

var (
	historySite      string
	historyWasteType string
	historyFrom      string
	historyTo        string
	historyFilter    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List submitted records for a site",
	Long: `List records submitted for a site within a date range. The range is
inclusive and capped at 31 days.`,
	RunE: runHistory,
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Summarise submitted records for a site",
	RunE:  runAnalytics,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(analyticsCmd)

	for _, c := range []*cobra.Command{historyCmd, analyticsCmd} {
		c.Flags().StringVar(&historySite, "site", "", "site (package) ID")
		c.Flags().StringVar(&historyWasteType, "waste-type",
			dedup.WasteTypeHazardous, "waste type (hazardous or solid)")
		c.Flags().StringVar(&historyFrom, "from", "", "start date (YYYY-MM-DD)")
		c.Flags().StringVar(&historyTo, "to", "", "end date (YYYY-MM-DD)")
	}

	historyCmd.Flags().StringVar(&historyFilter, "waste", "",
		"only show records whose waste name contains this text")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := fetchHistory(cmd, a)
	if err != nil {
		return err
	}

	if historyFilter != "" {
		records = history.FilterWaste(records, historyFilter)
	}

	if len(records) == 0 {
		fmt.Println("no records")

		return nil
	}

	for _, r := range records {
		line := fmt.Sprintf("%s  %-24s", r.Date.Format("2006-01-02"), r.Waste)

		if historyWasteType == dedup.WasteTypeHazardous {
			line += fmt.Sprintf("  %8.2f m3", r.Volume)
		} else {
			line += fmt.Sprintf("  %10s", r.Location)
		}

		fmt.Printf("%s  %s\n", line, r.User)
	}

	fmt.Printf("\n%d records\n", len(records))

	return nil
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := fetchHistory(cmd, a)
	if err != nil {
		return err
	}

	days, err := rangeDays(historyFrom, historyTo)
	if err != nil {
		return err
	}

	summary := history.Summarize(records, historyWasteType, days)

	fmt.Printf("entries:      %d\n", summary.Entries)

	if historyWasteType == dedup.WasteTypeHazardous {
		fmt.Printf("total volume: %.2f m3\n", summary.TotalVolume)
	}

	fmt.Printf("top waste:    %s\n", summary.TopWaste)
	fmt.Printf("avg per day:  %.2f\n", summary.AvgPerDay)

	if len(summary.ByWaste) > 0 {
		fmt.Println("\nby waste:")

		wastes := make([]string, 0, len(summary.ByWaste))
		for waste := range summary.ByWaste {
			wastes = append(wastes, waste)
		}

		sort.Strings(wastes)

		for _, waste := range wastes {
			fmt.Printf("  %-24s %d\n", waste, summary.ByWaste[waste])
		}
	}

	if top := summary.TopContributors(5); len(top) > 0 {
		fmt.Println("\ntop contributors:")

		for _, user := range top {
			fmt.Printf("  %-24s %d\n", user, summary.ByUser[user])
		}
	}

	return nil
}

func fetchHistory(cmd *cobra.Command, a *app) ([]history.Record, error) {
	if err := a.requireAuth(); err != nil {
		return nil, err
	}

	if historySite == "" || historyFrom == "" || historyTo == "" {
		return nil, fmt.Errorf("--site, --from, and --to are required")
	}

	svc := history.NewService(log, a.backend)

	return svc.Fetch(cmd.Context(), historySite, historyWasteType, historyFrom, historyTo)
}

func rangeDays(from, to string) (int, error) {
	fromDate, err := time.Parse("2006-01-02", from)
	if err != nil {
		return 0, fmt.Errorf("invalid from date %q: %w", from, err)
	}

	toDate, err := time.Parse("2006-01-02", to)
	if err != nil {
		return 0, fmt.Errorf("invalid to date %q: %w", to, err)
	}

	return int(toDate.Sub(fromDate).Hours()/24) + 1, nil
}
