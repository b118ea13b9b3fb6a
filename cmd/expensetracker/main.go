package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"expensetracker/internal/app"
	"expensetracker/internal/cli"
	"expensetracker/internal/log"
	"expensetracker/internal/store"
	"expensetracker/internal/window"
)

func main() {
	month := flag.String("month", "", "month to summarize as YYYY-MM (default: current month)")
	flag.Parse()

	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting expensetracker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AccessToken == "" {
		logger.Error("ACCESS_TOKEN is required")
		os.Exit(1)
	}

	ctx, _ := cli.GracefulShutdown(logger, 10*time.Second, nil)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.SignIn(ctx, cfg.AccessToken); err != nil {
		logger.Error("Sign-in failed", log.FieldError, err)
		os.Exit(1)
	}

	if *month != "" {
		if err := showMonth(ctx, a, *month); err != nil {
			logger.Error("Failed to load month", log.FieldError, err, "month", *month)
			os.Exit(1)
		}
	}

	render(a)
}

// showMonth points the window at another month of the current account.
func showMonth(ctx context.Context, a *app.App, month string) error {
	t, err := time.ParseInLocation("2006-01", month, time.Local)
	if err != nil {
		return fmt.Errorf("invalid month %q: %w", month, err)
	}
	current := a.Accounts.Snapshot().Current
	if current == nil {
		return fmt.Errorf("no current account")
	}
	start, end := window.MonthBounds(t)
	a.Window.SetWindow(ctx, start, end, current.ID)
	return a.Transactions.LoadMonth(ctx, store.MonthQuery(t, current.ID), store.SkipGlobalErrorHandling())
}

func render(a *app.App) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	accounts := a.Accounts.Snapshot()
	fmt.Fprintln(w, "ACCOUNT\tDEFAULT\tACTIVE\tCURRENT")
	for _, acc := range accounts.Items {
		current := accounts.Current != nil && accounts.Current.ID == acc.ID
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\n", acc.Name, acc.IsDefault, acc.IsActive, current)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "CATEGORY\tORDER\tACTIVE")
	for _, c := range a.Categories.Snapshot().Items {
		fmt.Fprintf(w, "%s\t%d\t%v\n", c.Name, c.Order, c.IsActive)
	}
	fmt.Fprintln(w)

	win := a.Window.Snapshot()
	sum := a.Dashboard()
	fmt.Fprintf(w, "WINDOW\t%s .. %s\t%d transactions\ttotal %s\n",
		win.WindowStart.Format(time.DateOnly), win.WindowEnd.Format(time.DateOnly), len(win.Items), sum.Total.StringFixed(2))
	fmt.Fprintln(w, "CATEGORY\tTOTAL\tSHARE")
	for _, c := range sum.Categories {
		fmt.Fprintf(w, "%s\t%s\t%.2f%%\n", c.Name, c.Total.StringFixed(2), c.Percentage)
	}
	if sum.HighestDay != nil {
		fmt.Fprintf(w, "HIGHEST DAY\t%s\t%s\n", sum.HighestDay.Date.Format(time.DateOnly), sum.HighestDay.Total.StringFixed(2))
	}
}
