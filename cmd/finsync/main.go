package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"finsync/internal/config"
	"finsync/internal/core"
	"finsync/internal/gateway"
	applog "finsync/internal/log"
	"finsync/internal/services"
	"finsync/internal/storage"
)

const dateLayout = "2006-01-02"

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := applog.New(logConfig(cfg))
	applog.SetDefault(logger)
	logger = applog.WithComponent(logger, applog.ComponentApp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize local store", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	client := gateway.NewClient(gateway.ClientConfig{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		Timeout:    cfg.RemoteTimeout,
		MaxRetries: uint64(cfg.MaxRetries),
	})

	svc := services.New(repo, services.Gateways{
		Accounts:     client,
		Categories:   client,
		Transactions: client,
	})

	if err := run(ctx, svc, os.Args[1:]); err != nil {
		logger.Error("Command failed", applog.FieldError, err)
		os.Exit(1)
	}
}

func logConfig(cfg *config.Config) applog.Config {
	lc := applog.DefaultConfig()
	switch cfg.LogLevel {
	case "debug":
		lc.Level = slog.LevelDebug
	case "warn":
		lc.Level = slog.LevelWarn
	case "error":
		lc.Level = slog.LevelError
	}
	if cfg.LogFormat == "json" {
		lc.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lc.Level})
	}
	return lc
}

func run(ctx context.Context, svc *services.Services, args []string) error {
	command := "refresh"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "refresh":
		return runRefresh(ctx, svc, args)
	case "list":
		return runList(ctx, svc, args)
	case "add":
		return runAdd(ctx, svc, args)
	case "update":
		return runUpdate(ctx, svc, args)
	case "delete":
		return runDelete(ctx, svc, args)
	case "account", "balance":
		return runAccount(ctx, svc, args)
	case "categories":
		return runCategories(ctx, svc, args)
	case "summary":
		return runSummary(ctx, svc, args)
	case "chart":
		return runChart(ctx, svc, args)
	case "sync":
		svc.Reconciler.Reconcile(ctx)
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: finsync <command> [flags]

Commands:
  refresh     pull account, categories and transactions for a period
  list        list transactions, optionally exporting to CSV
  add         record a new transaction
  update      edit an existing transaction
  delete      remove a transaction
  account     show or edit the account (alias: balance)
  categories  list categories
  summary     per-category totals for one direction
  chart       signed daily totals for chart rendering
  sync        replay pending offline operations

Run 'finsync <command> -h' for command flags.`)
}

// periodFlags registers the shared -from/-to pair, defaulting to the
// current month.
func periodFlags(fs *flag.FlagSet) (*string, *string) {
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)
	from := fs.String("from", monthStart.Format(dateLayout), "period start (YYYY-MM-DD)")
	to := fs.String("to", monthEnd.Format(dateLayout), "period end (YYYY-MM-DD)")
	return from, to
}

func parsePeriod(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse period start: %w", err)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse period end: %w", err)
	}
	// Make the end bound cover the whole day.
	end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("period end %s before start %s", to, from)
	}
	return start, end, nil
}

func runRefresh(ctx context.Context, svc *services.Services, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	from, to := periodFlags(fs)
	fs.Parse(args)

	start, end, err := parsePeriod(*from, *to)
	if err != nil {
		return err
	}

	result, err := svc.Refresh(ctx, start, end)
	if err != nil {
		return err
	}

	printAccount(result.Account)
	fmt.Printf("%d categories, %d transactions in %s..%s\n",
		len(result.Categories), len(result.Transactions), *from, *to)
	return nil
}

func runList(ctx context.Context, svc *services.Services, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	from, to := periodFlags(fs)
	sortBy := fs.String("sort", "date", "sort order: date or amount")
	csvPath := fs.String("csv", "", "export to CSV file instead of printing")
	fs.Parse(args)

	start, end, err := parsePeriod(*from, *to)
	if err != nil {
		return err
	}

	txs, err := svc.Transactions.FetchTransactions(ctx, start, end)
	if err != nil {
		return err
	}
	core.SortTransactions(txs, core.SortOption(*sortBy))
	categories := svc.Categories.CategoryMap(ctx)

	if *csvPath != "" {
		return exportCSV(*csvPath, txs, categories)
	}

	for _, tx := range txs {
		name := "?"
		symbol := ""
		if cat, ok := categories[tx.CategoryID]; ok {
			name = cat.Name
			symbol = cat.Emoji
		}
		fmt.Printf("%6d  %s  %s %-20s %10s  %s\n",
			tx.ID, tx.TransactionDate.Format(dateLayout), symbol, name,
			tx.Amount.StringFixed(2), tx.Comment)
	}
	return nil
}

func exportCSV(path string, txs []core.Transaction, categories map[int64]core.Category) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "date", "category", "amount", "comment"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, tx := range txs {
		name := ""
		if cat, ok := categories[tx.CategoryID]; ok {
			name = cat.Name
		}
		record := []string{
			fmt.Sprintf("%d", tx.ID),
			tx.TransactionDate.Format(dateLayout),
			name,
			tx.Amount.StringFixed(2),
			tx.Comment,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func transactionFlags(fs *flag.FlagSet) (id, category *int64, amount, date, comment *string) {
	id = fs.Int64("id", 0, "transaction id (0 = auto for add)")
	category = fs.Int64("category", 0, "category id")
	amount = fs.String("amount", "", "amount, e.g. 200.50")
	date = fs.String("date", time.Now().UTC().Format(dateLayout), "transaction date (YYYY-MM-DD)")
	comment = fs.String("comment", "", "free-form comment")
	return
}

func buildTransaction(ctx context.Context, svc *services.Services, id, category int64, amount, date, comment string) (core.Transaction, error) {
	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	parsedDate, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}

	accountID := int64(0)
	if account, ok := svc.Accounts.Balance(); ok {
		accountID = account.ID
	} else if account, err := svc.Accounts.GetAccount(ctx); err == nil {
		accountID = account.ID
	} else {
		return core.Transaction{}, fmt.Errorf("resolve account: %w", err)
	}

	return core.Transaction{
		ID:              id,
		AccountID:       accountID,
		CategoryID:      category,
		Amount:          parsedAmount,
		TransactionDate: parsedDate,
		Comment:         comment,
	}, nil
}

func runAdd(ctx context.Context, svc *services.Services, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	id, category, amount, date, comment := transactionFlags(fs)
	fs.Parse(args)

	if *id == 0 {
		*id = svc.Transactions.NextTransactionID(ctx)
	}
	tx, err := buildTransaction(ctx, svc, *id, *category, *amount, *date, *comment)
	if err != nil {
		return err
	}
	if err := svc.Transactions.CreateTransaction(ctx, tx); err != nil {
		if isQueued(err) {
			fmt.Printf("transaction %d saved locally, delivery pending\n", tx.ID)
			return nil
		}
		return err
	}
	fmt.Printf("transaction %d recorded\n", tx.ID)
	return nil
}

func runUpdate(ctx context.Context, svc *services.Services, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	id, category, amount, date, comment := transactionFlags(fs)
	fs.Parse(args)

	tx, err := buildTransaction(ctx, svc, *id, *category, *amount, *date, *comment)
	if err != nil {
		return err
	}
	if err := svc.Transactions.UpdateTransaction(ctx, tx); err != nil {
		if isQueued(err) {
			fmt.Printf("transaction %d updated locally, delivery pending\n", tx.ID)
			return nil
		}
		return err
	}
	fmt.Printf("transaction %d updated\n", tx.ID)
	return nil
}

func runDelete(ctx context.Context, svc *services.Services, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.Int64("id", 0, "transaction id")
	fs.Parse(args)

	if err := svc.Transactions.DeleteTransaction(ctx, *id); err != nil {
		if isQueued(err) {
			fmt.Printf("transaction %d deleted locally, delivery pending\n", *id)
			return nil
		}
		return err
	}
	fmt.Printf("transaction %d deleted\n", *id)
	return nil
}

func runAccount(ctx context.Context, svc *services.Services, args []string) error {
	fs := flag.NewFlagSet("account", flag.ExitOnError)
	balance := fs.String("balance", "", "new balance (empty = show only)")
	currency := fs.String("currency", "", "new currency code (empty = keep)")
	fs.Parse(args)

	account, err := svc.Accounts.GetAccount(ctx)
	if err != nil {
		return err
	}

	if *balance == "" && *currency == "" {
		printAccount(account)
		return nil
	}

	edited := *account
	if *balance != "" {
		parsed, err := decimal.NewFromString(*balance)
		if err != nil {
			return fmt.Errorf("parse balance %q: %w", *balance, err)
		}
		edited.Balance = parsed
	}
	if *currency != "" {
		if !slices.Contains(core.Currencies(), *currency) {
			return fmt.Errorf("unsupported currency %q, choose one of %v", *currency, core.Currencies())
		}
		edited.Currency = *currency
	}

	if err := svc.Accounts.UpdateAccount(ctx, edited); err != nil {
		if isQueued(err) {
			fmt.Println("account updated locally, delivery pending")
			return nil
		}
		return err
	}
	printAccount(&edited)
	return nil
}

func printAccount(account *core.Account) {
	if account == nil {
		return
	}
	fmt.Printf("%s: %s %s\n", account.Name,
		account.Balance.StringFixed(2), core.Symbol(account.Currency))
}

func runCategories(ctx context.Context, svc *services.Services, args []string) error {
	fs := flag.NewFlagSet("categories", flag.ExitOnError)
	directionFlag := fs.String("direction", "", "filter: income or outcome (empty = all)")
	fs.Parse(args)

	var (
		categories []core.Category
		err        error
	)
	if *directionFlag == "" {
		categories, err = svc.Categories.Categories(ctx)
	} else {
		var direction core.Direction
		direction, err = core.ParseDirection(*directionFlag)
		if err != nil {
			return err
		}
		categories, err = svc.Categories.CategoriesByDirection(ctx, direction)
	}
	if err != nil {
		return err
	}

	for _, c := range categories {
		fmt.Printf("%4d  %s %-20s %s\n", c.ID, c.Emoji, c.Name, c.Direction)
	}
	return nil
}

func runSummary(ctx context.Context, svc *services.Services, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	from, to := periodFlags(fs)
	directionFlag := fs.String("direction", "outcome", "income or outcome")
	fs.Parse(args)

	start, end, err := parsePeriod(*from, *to)
	if err != nil {
		return err
	}
	direction, err := core.ParseDirection(*directionFlag)
	if err != nil {
		return err
	}

	summary, err := svc.Summarize(ctx, start, end, direction)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s..%s: %s\n", summary.Direction, *from, *to, summary.Total.StringFixed(2))
	for _, slice := range summary.ByCategory {
		share := "0"
		if !summary.Total.IsZero() {
			share = slice.Amount.Div(summary.Total).Mul(decimal.NewFromInt(100)).StringFixed(1)
		}
		fmt.Printf("  %s %-20s %10s  %5s%%\n",
			slice.Category.Emoji, slice.Category.Name, slice.Amount.StringFixed(2), share)
	}
	return nil
}

func runChart(ctx context.Context, svc *services.Services, args []string) error {
	fs := flag.NewFlagSet("chart", flag.ExitOnError)
	now := time.Now().UTC()
	from := fs.String("from", now.AddDate(0, 0, -29).Format(dateLayout), "series start (YYYY-MM-DD)")
	days := fs.Int("days", 30, "number of days")
	fs.Parse(args)

	start, err := time.Parse(dateLayout, *from)
	if err != nil {
		return fmt.Errorf("parse series start: %w", err)
	}
	if *days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", *days)
	}

	series, err := svc.DailyBalanceSeries(ctx, start, *days)
	if err != nil {
		return err
	}
	for _, day := range series {
		fmt.Printf("%s %10s\n", day.Date.Format(dateLayout), day.Total.StringFixed(2))
	}
	return nil
}

// isQueued reports whether a mutation failed only because the remote is
// unreachable; the data is safe locally and queued for replay.
func isQueued(err error) bool {
	return gateway.IsUnavailable(err)
}
