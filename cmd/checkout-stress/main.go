// Команда checkout-stress конкурентно оформляет корзины, претендующие на один
// ограниченный остаток, и проверяет, что склад не ушёл в минус и не потерял единицы.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/service/checkout"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/postgres"
)

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"

	outcomeOK = "OK"
)

type config struct {
	driver      string
	dsn         string
	carts       int
	quantity    int
	stock       int
	warehouses  int
	concurrency int
	cancelRate  int
	timeout     time.Duration
	price       decimal.Decimal
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type stockCheck struct {
	InitialUnits   int  `json:"initial_units"`
	RemainingUnits int  `json:"remaining_units"`
	HeldUnits      int  `json:"held_units"`
	NegativeRows   int  `json:"negative_rows"`
	Consistent     bool `json:"consistent"`
}

type report struct {
	StartedAt       time.Time               `json:"started_at"`
	DurationSeconds float64                 `json:"duration_seconds"`
	Carts           int                     `json:"carts"`
	Placed          int64                   `json:"placed"`
	Cancelled       int64                   `json:"cancelled"`
	Rejected        int64                   `json:"rejected"`
	Errors          int64                   `json:"errors"`
	RPS             float64                 `json:"rps"`
	Stock           stockCheck              `json:"stock"`
	Methods         map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	outcomes  map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

// record учитывает вызов; outcome содержит вид доменной ошибки или OK.
func (c *collector) record(method string, latency time.Duration, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{outcomes: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if outcome == outcomeOK {
		stats.success++
	} else {
		stats.failed++
	}
	stats.outcomes[outcome]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) methodReports() map[string]methodReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]methodReport, len(c.methods))
	for name, stats := range c.methods {
		outcomes := make(map[string]int64, len(stats.outcomes))
		for outcome, count := range stats.outcomes {
			outcomes[outcome] = count
		}
		out[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			Outcomes:  outcomes,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}
	return out
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg          config
		timeoutValue string
		priceValue   string
	)

	fs := flag.NewFlagSet("checkout-stress", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.driver, "driver", driverMemory, "storage driver: memory | postgres")
	fs.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: BOOKSTORE_POSTGRES_DSN)")
	fs.IntVar(&cfg.carts, "carts", 200, "number of carts competing for the stock")
	fs.IntVar(&cfg.quantity, "qty", 1, "units of the book in every cart")
	fs.IntVar(&cfg.stock, "stock", 100, "units of stock per warehouse")
	fs.IntVar(&cfg.warehouses, "warehouses", 2, "number of warehouses holding the book")
	fs.IntVar(&cfg.concurrency, "concurrency", 32, "number of concurrent checkouts")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "percent of placed orders cancelled right away (0..100)")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-operation timeout")
	fs.StringVar(&priceValue, "price", "9.99", "book price")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	price, err := decimal.NewFromString(strings.TrimSpace(priceValue))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price

	cfg.driver = strings.ToLower(strings.TrimSpace(cfg.driver))
	cfg.dsn = strings.TrimSpace(cfg.dsn)
	if cfg.dsn == "" && getenv != nil {
		cfg.dsn = strings.TrimSpace(getenv("BOOKSTORE_POSTGRES_DSN"))
	}

	switch cfg.driver {
	case driverMemory:
	case driverPostgres:
		if cfg.dsn == "" {
			return cfg, errors.New("dsn is required for postgres driver")
		}
	default:
		return cfg, fmt.Errorf("unsupported driver: %s", cfg.driver)
	}
	if cfg.carts <= 0 {
		return cfg, errors.New("carts must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("qty must be > 0")
	}
	if cfg.stock < 0 {
		return cfg, errors.New("stock must be >= 0")
	}
	if cfg.warehouses <= 0 {
		return cfg, errors.New("warehouses must be > 0")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if !cfg.price.IsPositive() {
		return cfg, errors.New("price must be > 0")
	}
	return cfg, nil
}

func openStorage(ctx context.Context, cfg config) (domain.Storage, error) {
	if cfg.driver == driverMemory {
		return memory.NewStore(), nil
	}

	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("apply migrations: %w", err), store.Close())
	}
	return store, nil
}

// fixture — книга и корзины, подготовленные для прогона.
type fixture struct {
	bookID  int64
	cartIDs []int64
}

func seed(ctx context.Context, storage domain.Storage, cfg config, runID string) (fixture, error) {
	catalog := storage.Catalog()

	book, err := catalog.SaveBook(ctx, domain.Book{
		ISBN:     "STRESS-" + runID,
		Title:    "Checkout stress " + runID,
		Price:    cfg.price,
		Currency: domain.DefaultCurrency,
	})
	if err != nil {
		return fixture{}, fmt.Errorf("save book: %w", err)
	}

	for i := 0; i < cfg.warehouses; i++ {
		warehouse, err := catalog.SaveWarehouse(ctx, domain.Warehouse{
			Code: fmt.Sprintf("STRESS-%s-%d", runID, i),
			Name: fmt.Sprintf("Stress warehouse %d", i),
		})
		if err != nil {
			return fixture{}, fmt.Errorf("save warehouse: %w", err)
		}
		if _, err := catalog.SetStock(ctx, warehouse.ID, book.ID, cfg.stock); err != nil {
			return fixture{}, fmt.Errorf("set stock: %w", err)
		}
	}

	fx := fixture{bookID: book.ID, cartIDs: make([]int64, 0, cfg.carts)}
	for i := 0; i < cfg.carts; i++ {
		cart, err := storage.Carts().Create(ctx, fmt.Sprintf("stress-%s-%d", runID, i))
		if err != nil {
			return fixture{}, fmt.Errorf("create cart: %w", err)
		}
		if _, err := storage.Carts().AddItem(ctx, cart.ID, book.ID, cfg.quantity, cfg.price); err != nil {
			return fixture{}, fmt.Errorf("add cart item: %w", err)
		}
		fx.cartIDs = append(fx.cartIDs, cart.ID)
	}
	return fx, nil
}

type runner struct {
	orchestrator *checkout.Orchestrator
	cfg          config
	col          *collector

	mu        sync.Mutex
	placed    int64
	cancelled int64
	rejected  int64
	errors    int64
}

func (r *runner) runScenario(index int, cartID int64) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.timeout)
	defer cancel()

	order, err := r.orchestrator.Checkout(ctx, checkout.CheckoutRequest{CartID: cartID})
	r.col.record("Checkout", time.Since(start), outcomeOf(err))
	if err != nil {
		r.mu.Lock()
		if isStockRejection(err) {
			r.rejected++
		} else {
			r.errors++
		}
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.placed++
	r.mu.Unlock()

	if !shouldCancelScenario(index, r.cfg.cancelRate) {
		return
	}

	start = time.Now()
	_, err = r.orchestrator.TransitionOrder(ctx, checkout.TransitionRequest{
		OrderNumber: order.Number,
		Target:      domain.OrderStatusCancelled,
	})
	r.col.record("TransitionOrder", time.Since(start), outcomeOf(err))

	r.mu.Lock()
	if err != nil {
		r.errors++
	} else {
		r.cancelled++
	}
	r.mu.Unlock()
}

func run(ctx context.Context, storage domain.Storage, cfg config, logger *log.Entry) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	fx, err := seed(ctx, storage, cfg, runID)
	if err != nil {
		return report{}, err
	}

	orchestrator, err := checkout.NewOrchestrator(storage,
		checkout.WithLogger(logger.WithField("layer", "checkout")),
		checkout.WithTimeout(cfg.timeout),
	)
	if err != nil {
		return report{}, err
	}

	r := &runner{orchestrator: orchestrator, cfg: cfg, col: newCollector()}
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				r.runScenario(index, fx.cartIDs[index])
			}
		}()
	}
	for index := range fx.cartIDs {
		jobs <- index
	}
	close(jobs)
	wg.Wait()

	duration := time.Since(startedAt)
	stock, err := verifyStock(ctx, storage, fx.bookID, cfg, r.placed-r.cancelled)
	if err != nil {
		return report{}, err
	}

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Carts:           cfg.carts,
		Placed:          r.placed,
		Cancelled:       r.cancelled,
		Rejected:        r.rejected,
		Errors:          r.errors,
		Stock:           stock,
		Methods:         r.col.methodReports(),
	}
	if duration > 0 {
		result.RPS = float64(cfg.carts) / duration.Seconds()
	}
	return result, nil
}

// verifyStock сверяет остатки: начальные единицы = оставшиеся + удерживаемые активными заказами.
func verifyStock(ctx context.Context, storage domain.Storage, bookID int64, cfg config, activeOrders int64) (stockCheck, error) {
	rows, err := storage.Catalog().ListStock(ctx, bookID)
	if err != nil {
		return stockCheck{}, fmt.Errorf("list stock: %w", err)
	}

	check := stockCheck{
		InitialUnits: cfg.stock * cfg.warehouses,
		HeldUnits:    int(activeOrders) * cfg.quantity,
	}
	for _, row := range rows {
		check.RemainingUnits += row.Quantity
		if row.Quantity < 0 {
			check.NegativeRows++
		}
	}
	check.Consistent = check.NegativeRows == 0 && check.RemainingUnits+check.HeldUnits == check.InitialUnits
	return check, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "DEADLINE_EXCEEDED"
	}
	return "UNKNOWN"
}

func isStockRejection(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindInsufficientStock, domain.KindNoInventory:
		return true
	default:
		return false
	}
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	storage, err := openStorage(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	result, err := run(ctx, storage, cfg, log.WithField("component", "checkout-stress"))
	_ = storage.Close()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "stress run failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if !result.Stock.Consistent || result.Errors > 0 {
		os.Exit(1)
	}
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local stress reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Checkout stress summary")
	_, _ = fmt.Fprintf(out, "driver=%s carts=%d qty=%d stock=%dx%d concurrency=%d\n",
		cfg.driver, cfg.carts, cfg.quantity, cfg.stock, cfg.warehouses, cfg.concurrency)
	_, _ = fmt.Fprintf(out, "placed=%d cancelled=%d rejected=%d errors=%d duration=%.2fs rps=%.2f\n",
		result.Placed, result.Cancelled, result.Rejected, result.Errors, result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "stock: initial=%d remaining=%d held=%d negative_rows=%d consistent=%t\n",
		result.Stock.InitialUnits, result.Stock.RemainingUnits, result.Stock.HeldUnits,
		result.Stock.NegativeRows, result.Stock.Consistent)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(out, "%s: calls=%d success=%d failed=%d p50=%.2fms p95=%.2fms p99=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed,
			stats.LatencyMs.P50, stats.LatencyMs.P95, stats.LatencyMs.P99)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
