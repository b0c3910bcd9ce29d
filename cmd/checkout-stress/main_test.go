package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

func testConfig() config {
	return config{
		driver:      driverMemory,
		carts:       40,
		quantity:    2,
		stock:       15,
		warehouses:  2,
		concurrency: 8,
		timeout:     5 * time.Second,
		price:       decimal.RequireFromString("4.50"),
	}
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	return log.NewEntry(logger)
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil, func(string) string { return "" })
	require.NoError(t, err)
	require.Equal(t, driverMemory, cfg.driver)
	require.Equal(t, 200, cfg.carts)
	require.Equal(t, 5*time.Second, cfg.timeout)
	require.True(t, cfg.price.Equal(decimal.RequireFromString("9.99")))
}

func TestParseConfig_PostgresDSNFromEnv(t *testing.T) {
	cfg, err := parseConfig([]string{"-driver=POSTGRES"}, func(key string) string {
		if key == "BOOKSTORE_POSTGRES_DSN" {
			return " postgres://localhost/bookstore "
		}
		return ""
	})
	require.NoError(t, err)
	require.Equal(t, driverPostgres, cfg.driver)
	require.Equal(t, "postgres://localhost/bookstore", cfg.dsn)
}

func TestParseConfig_Errors(t *testing.T) {
	cases := map[string][]string{
		"dsn is required":      {"-driver=postgres"},
		"unsupported driver":   {"-driver=sqlite"},
		"carts must be > 0":    {"-carts=0"},
		"qty must be > 0":      {"-qty=0"},
		"stock must be >= 0":   {"-stock=-1"},
		"concurrency must be":  {"-concurrency=0"},
		"cancel-rate must be":  {"-cancel-rate=101"},
		"timeout must be > 0":  {"-timeout=0s"},
		"parse timeout":        {"-timeout=soon"},
		"parse price":          {"-price=free"},
		"price must be > 0":    {"-price=0"},
		"warehouses must be >": {"-warehouses=0"},
	}
	for want, args := range cases {
		t.Run(want, func(t *testing.T) {
			_, err := parseConfig(args, func(string) string { return "" })
			require.ErrorContains(t, err, want)
		})
	}
}

func TestRun_NoOversell(t *testing.T) {
	cfg := testConfig()
	store := memory.NewStore()

	result, err := run(context.Background(), store, cfg, quietLogger())
	require.NoError(t, err)

	// 2 склада по 15 единиц, корзины по 2 единицы: каждый склад покрывает 7 корзин.
	require.Equal(t, int64(14), result.Placed)
	require.Equal(t, int64(26), result.Rejected)
	require.Zero(t, result.Errors)
	require.True(t, result.Stock.Consistent, "%+v", result.Stock)
	require.Equal(t, 2, result.Stock.RemainingUnits)
	require.Zero(t, result.Stock.NegativeRows)

	checkouts := result.Methods["Checkout"]
	require.Equal(t, int64(cfg.carts), checkouts.Calls)
	require.Equal(t, int64(26), checkouts.Outcomes[string(domain.KindInsufficientStock)])
}

func TestRun_CancelRestocks(t *testing.T) {
	cfg := testConfig()
	cfg.carts = 10
	cfg.stock = 100
	cfg.cancelRate = 100

	result, err := run(context.Background(), memory.NewStore(), cfg, quietLogger())
	require.NoError(t, err)

	require.Equal(t, int64(10), result.Placed)
	require.Equal(t, int64(10), result.Cancelled)
	require.Zero(t, result.Stock.HeldUnits)
	require.Equal(t, result.Stock.InitialUnits, result.Stock.RemainingUnits)
	require.True(t, result.Stock.Consistent)
	require.Equal(t, int64(10), result.Methods["TransitionOrder"].Success)
}

func TestRun_NoStock(t *testing.T) {
	cfg := testConfig()
	cfg.carts = 5
	cfg.stock = 0

	result, err := run(context.Background(), memory.NewStore(), cfg, quietLogger())
	require.NoError(t, err)
	require.Zero(t, result.Placed)
	require.Equal(t, int64(5), result.Rejected)
	require.True(t, result.Stock.Consistent)
}

func TestOutcomeOf(t *testing.T) {
	require.Equal(t, outcomeOK, outcomeOf(nil))
	require.Equal(t, "INSUFFICIENT_STOCK", outcomeOf(domain.InsufficientStock(1)))
	require.Equal(t, "DEADLINE_EXCEEDED", outcomeOf(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	require.Equal(t, "UNKNOWN", outcomeOf(errors.New("boom")))

	require.True(t, isStockRejection(domain.NoInventory(1)))
	require.False(t, isStockRejection(domain.ErrEmptyCart))
}

func TestShouldCancelScenario(t *testing.T) {
	require.False(t, shouldCancelScenario(5, 0))
	require.True(t, shouldCancelScenario(5, 100))
	require.True(t, shouldCancelScenario(5, 10))
	require.False(t, shouldCancelScenario(15, 10))
}

func TestBuildLatencySummary(t *testing.T) {
	require.Equal(t, latencySummary{}, buildLatencySummary(nil))

	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	require.Equal(t, 1.0, summary.Min)
	require.Equal(t, 4.0, summary.Max)
	require.Equal(t, 2.5, summary.Avg)
	require.InDelta(t, 2.5, summary.P50, 1e-9)
	require.InDelta(t, 3.85, summary.P95, 1e-9)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, report{
		Placed:  3,
		Stock:   stockCheck{InitialUnits: 10, RemainingUnits: 7, HeldUnits: 3, Consistent: true},
		Methods: map[string]methodReport{"Checkout": {Calls: 3, Success: 3}},
	}, testConfig())

	out := buf.String()
	require.Contains(t, out, "placed=3")
	require.Contains(t, out, "consistent=true")
	require.Contains(t, out, "Checkout: calls=3 success=3 failed=0")
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { require.NoError(t, os.Chdir(wd)) }()

	require.NoError(t, writeJSONReport("report.json", report{Placed: 2}))

	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, int64(2), decoded.Placed)

	require.Error(t, writeJSONReport(".", report{}))
	require.Error(t, writeJSONReport("../escape.json", report{}))
}
