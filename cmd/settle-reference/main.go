/**
 * @description
 * Operator tool that settles a single Paystack reference by hand. It looks the charge up
 * with Paystack, prints what Paystack reports, asks for confirmation and then runs the
 * same settlement path the webhook uses. Settlement is idempotent, so running it against
 * an already settled reference only reports a duplicate.
 *
 * Usage:
 *   go run ./cmd/settle-reference <reference>
 *
 * @dependencies
 * - Environment variables: PAYSTACK_SECRET_KEY, DATABASE_URL (loaded from .env when present)
 */
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bookpay/settlement-service/internal/app"
	"github.com/bookpay/settlement-service/internal/config"
	"github.com/bookpay/settlement-service/internal/store"
	"github.com/bookpay/settlement-service/pkg/paystackclient"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: go run ./cmd/settle-reference <reference>")
		fmt.Println("Example: go run ./cmd/settle-reference T123456789")
		os.Exit(1)
	}
	reference := strings.TrimSpace(os.Args[1])

	for _, envFile := range []string{"../.env", ".env"} {
		_ = godotenv.Load(envFile)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.PaystackSecretKey == "" || cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "PAYSTACK_SECRET_KEY and DATABASE_URL are required")
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	paystack := paystackclient.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, logger)

	fmt.Printf("Fetching transaction for reference: %s\n", reference)
	data, err := paystack.VerifyTransaction(ctx, reference)
	if err != nil {
		logger.Fatal("failed to fetch transaction", zap.Error(err))
	}
	printTransaction(data)

	if !data.Succeeded() {
		fmt.Println("\nPaystack does not report this charge as successful; nothing to settle.")
		os.Exit(0)
	}

	fmt.Printf("\nSettle this payment now? (yes/no): ")
	var confirmation string
	fmt.Scanln(&confirmation)
	if confirmation != "yes" {
		fmt.Println("Settlement cancelled.")
		os.Exit(0)
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("unable to parse database URL", zap.Error(err))
	}
	dbConfig.MaxConns = 2
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	defer dbpool.Close()

	repository := store.NewPostgresRepository(dbpool)
	audit := app.NewAuditLogger(repository, logger)
	reconciler := app.NewReconciler(repository, nil, audit, logger, app.ReconcilerConfig{
		FeePercent:     decimal.NewFromFloat(cfg.PlatformFeePercent),
		Lease:          cfg.SettlementLease(),
		EventsExchange: cfg.EventsExchange,
	})
	dispatcher := app.NewDispatcher(reconciler, audit, logger, cfg.DefaultCurrency)

	outcome, err := dispatcher.Dispatch(ctx, app.ChargeEventFromVerification(*data))
	if err != nil {
		logger.Fatal("settlement failed", zap.Error(err))
	}

	fmt.Printf("Settlement outcome for %s: %s\n", reference, outcome.Kind)
	if outcome.Settlement != nil && len(outcome.Settlement.FailedSteps) > 0 {
		fmt.Printf("Steps that failed and will be retried by the sweep: %s\n", strings.Join(outcome.Settlement.FailedSteps, ", "))
	}
}

func printTransaction(data *paystackclient.VerifyData) {
	fmt.Printf("Transaction Details:\n")
	fmt.Printf("  Reference: %s\n", data.Reference)
	fmt.Printf("  Status: %s\n", data.Status)
	fmt.Printf("  Amount: %s %s\n", app.FromMinorUnits(data.Amount).StringFixed(2), data.Currency)
	fmt.Printf("  Channel: %s\n", data.Channel)
	fmt.Printf("  Paid at: %s\n", data.PaidAt)
	fmt.Printf("  Customer: %s\n", data.Customer.Email)
	if paymentType, ok := data.Metadata["payment_type"]; ok {
		fmt.Printf("  Payment type: %v\n", paymentType)
	}
}
