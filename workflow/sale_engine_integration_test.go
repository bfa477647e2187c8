package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"bitbucket.org/mmdatafocus/retail_backend/workflow"
	"github.com/shopspring/decimal"
)

// Integration tests run the full engine against real MySQL + Redis containers.
// They are skipped unless INTEGRATION_TESTS=1 (requires docker).

type saleFixture struct {
	customer      *models.Customer
	employee      *models.Employee
	paymentMethod *models.PaymentMethod
	tax           *models.Tax
	product       *models.Product
}

func setupSaleEngine(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "retail_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func seedSaleFixture(t *testing.T, ctx context.Context, openingStock decimal.Decimal) *saleFixture {
	t.Helper()

	tier, err := models.CreateCustomerTier(ctx, &models.NewCustomerTier{
		Name:            "Gold",
		MinimumSpend:    decimal.NewFromInt(500000),
		DiscountPercent: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateCustomerTier: %v", err)
	}

	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:   "Daw Mya",
		Email:  "mya@test.local",
		TierId: tier.ID,
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	employee, err := models.CreateEmployee(ctx, &models.NewEmployee{
		Name:  "Counter One",
		Email: "counter1@test.local",
	})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	paymentMethod, err := models.CreatePaymentMethod(ctx, &models.NewPaymentMethod{Name: "Cash"})
	if err != nil {
		t.Fatalf("CreatePaymentMethod: %v", err)
	}

	tax, err := models.CreateTax(ctx, &models.NewTax{
		Name: "Commercial Tax",
		Rate: decimal.NewFromInt(18),
	})
	if err != nil {
		t.Fatalf("CreateTax: %v", err)
	}

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Espresso Machine",
		Sku:          "ESP-9000",
		SalesPrice:   decimal.NewFromInt(85000),
		PurchaseCost: decimal.NewFromInt(60000),
		OpeningStock: openingStock,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	return &saleFixture{
		customer:      customer,
		employee:      employee,
		paymentMethod: paymentMethod,
		tax:           tax,
		product:       product,
	}
}

func (f *saleFixture) newSaleInput(qty int64) *models.NewSale {
	return &models.NewSale{
		CustomerId:      f.customer.ID,
		EmployeeId:      f.employee.ID,
		PaymentMethodId: f.paymentMethod.ID,
		TaxId:           f.tax.ID,
		Details: []models.NewSaleDetail{
			{ProductId: f.product.ID, Qty: decimal.NewFromInt(qty)},
		},
	}
}

func mustEqualDecimal(t *testing.T, want string, got decimal.Decimal, label string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: want %s, got %s", label, want, got)
	}
}

func TestCreateSaleComputesTotalsAndMovesStock(t *testing.T) {
	ctx := setupSaleEngine(t)
	f := seedSaleFixture(t, ctx, decimal.NewFromInt(25))

	sale, err := workflow.CreateSale(ctx, f.newSaleInput(1))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	if sale.CurrentStatus != models.SaleStatusCompleted {
		t.Fatalf("status: want Completed, got %s", sale.CurrentStatus)
	}
	if !strings.HasPrefix(sale.SaleNumber, "SAL-") {
		t.Fatalf("sale number: want SAL- prefix, got %q", sale.SaleNumber)
	}
	mustEqualDecimal(t, "85000", sale.Subtotal, "subtotal")
	mustEqualDecimal(t, "8500", sale.DiscountAmount, "discount")
	mustEqualDecimal(t, "13770", sale.TaxAmount, "tax")
	mustEqualDecimal(t, "90270", sale.TotalAmount, "total")
	if len(sale.Details) != 1 {
		t.Fatalf("details: want 1, got %d", len(sale.Details))
	}
	mustEqualDecimal(t, "85000", sale.Details[0].UnitRate, "unit rate")

	product, err := models.GetProduct(ctx, f.product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	mustEqualDecimal(t, "24", product.StockOnHand, "stock on hand")

	customer, err := models.GetCustomer(ctx, f.customer.ID)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	mustEqualDecimal(t, "90270", customer.TotalSpent, "customer total spent")
	if customer.LastPurchaseDate == nil {
		t.Fatalf("customer last purchase date not set")
	}

	db := config.GetDB()
	var entries []models.StockLedgerEntry
	if err := db.Where("sale_id = ? AND event_type = ?", sale.ID, models.StockEventSale).Find(&entries).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger entries: want 1, got %d", len(entries))
	}
	mustEqualDecimal(t, "-1", entries[0].Qty, "ledger qty")
	if entries[0].CorrelationId == "" {
		t.Fatalf("ledger entry missing correlation id")
	}
}

func TestCreateSaleNeverOversells(t *testing.T) {
	ctx := setupSaleEngine(t)
	f := seedSaleFixture(t, ctx, decimal.NewFromInt(5))

	const buyers = 8
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = workflow.CreateSale(ctx, f.newSaleInput(1))
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			var ise *utils.InsufficientStockError
			if !errors.As(err, &ise) {
				t.Fatalf("unexpected error: %v", err)
			}
			rejected++
		}
	}
	if succeeded != 5 || rejected != 3 {
		t.Fatalf("want 5 successes and 3 stock rejections, got %d/%d", succeeded, rejected)
	}

	product, err := models.GetProduct(ctx, f.product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	mustEqualDecimal(t, "0", product.StockOnHand, "stock on hand")

	// ledger (opening +5, sales -5) reconciles to on-hand
	db := config.GetDB()
	var ledgerSum decimal.Decimal
	if err := db.Model(&models.StockLedgerEntry{}).
		Where("product_id = ?", f.product.ID).
		Select("COALESCE(SUM(qty), 0)").Scan(&ledgerSum).Error; err != nil {
		t.Fatalf("sum ledger: %v", err)
	}
	mustEqualDecimal(t, "0", ledgerSum, "ledger sum")
}

func TestReverseSaleRestoresStockAndSpend(t *testing.T) {
	ctx := setupSaleEngine(t)
	f := seedSaleFixture(t, ctx, decimal.NewFromInt(10))

	sale, err := workflow.CreateSale(ctx, f.newSaleInput(3))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	reversed, err := workflow.ReverseSale(ctx, sale.ID, "customer returned goods")
	if err != nil {
		t.Fatalf("ReverseSale: %v", err)
	}
	if reversed.CurrentStatus != models.SaleStatusRefunded {
		t.Fatalf("status: want Refunded, got %s", reversed.CurrentStatus)
	}
	if reversed.RefundedAt == nil {
		t.Fatalf("refunded_at not set")
	}

	product, err := models.GetProduct(ctx, f.product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	mustEqualDecimal(t, "10", product.StockOnHand, "stock restored")

	customer, err := models.GetCustomer(ctx, f.customer.ID)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	mustEqualDecimal(t, "0", customer.TotalSpent, "customer spend restored")

	db := config.GetDB()
	var returns []models.StockLedgerEntry
	if err := db.Where("sale_id = ? AND event_type = ?", sale.ID, models.StockEventReturn).Find(&returns).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(returns) != 1 {
		t.Fatalf("return entries: want 1, got %d", len(returns))
	}
	mustEqualDecimal(t, "3", returns[0].Qty, "return qty")

	// second reversal must refuse; stock and ledger stay untouched
	if _, err := workflow.ReverseSale(ctx, sale.ID, "double refund attempt"); !errors.Is(err, utils.ErrAlreadyReversed) {
		t.Fatalf("second reversal: want ErrAlreadyReversed, got %v", err)
	}
	product, err = models.GetProduct(ctx, f.product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	mustEqualDecimal(t, "10", product.StockOnHand, "stock after refused reversal")
}

func TestReverseSaleUnknownSale(t *testing.T) {
	ctx := setupSaleEngine(t)
	seedSaleFixture(t, ctx, decimal.NewFromInt(1))

	if _, err := workflow.ReverseSale(ctx, 99999, "no such sale"); !errors.Is(err, utils.ErrSaleNotFound) {
		t.Fatalf("want ErrSaleNotFound, got %v", err)
	}
}

func TestCreateSaleIdempotencyKeyReplays(t *testing.T) {
	ctx := setupSaleEngine(t)
	f := seedSaleFixture(t, ctx, decimal.NewFromInt(10))

	input := f.newSaleInput(2)
	input.IdempotencyKey = "pos-7-receipt-1001"

	first, err := workflow.CreateSale(ctx, input)
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	second, err := workflow.CreateSale(ctx, input)
	if err != nil {
		t.Fatalf("CreateSale replay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay created a new sale: %d != %d", first.ID, second.ID)
	}

	// stock moved exactly once
	product, err := models.GetProduct(ctx, f.product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	mustEqualDecimal(t, "8", product.StockOnHand, "stock on hand")
}

func TestCreateSaleExhaustsRetriesUnderHeldLock(t *testing.T) {
	t.Setenv("DB_LOCK_WAIT_TIMEOUT_SECONDS", "1")
	ctx := setupSaleEngine(t)
	f := seedSaleFixture(t, ctx, decimal.NewFromInt(10))

	// hold the product row lock in a second session for the whole test
	db := config.GetDB()
	blocker := db.Begin()
	if err := blocker.Exec("SELECT id FROM products WHERE id = ? FOR UPDATE", f.product.ID).Error; err != nil {
		t.Fatalf("acquire blocking lock: %v", err)
	}
	defer blocker.Rollback()

	_, err := workflow.CreateSale(ctx, f.newSaleInput(1))

	var ee *utils.ExhaustedRetriesError
	if !errors.As(err, &ee) {
		t.Fatalf("want ExhaustedRetriesError, got %v", err)
	}
	if !utils.IsContention(ee.Last) {
		t.Fatalf("last error should be contention, got %v", ee.Last)
	}

	blocker.Rollback()
	time.Sleep(100 * time.Millisecond)

	// every attempt rolled back fully: no sale rows, no ledger movement
	var saleCount int64
	if err := db.Model(&models.Sale{}).Count(&saleCount).Error; err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if saleCount != 0 {
		t.Fatalf("partial sale rows left behind: %d", saleCount)
	}
	product, err := models.GetProduct(ctx, f.product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	mustEqualDecimal(t, "10", product.StockOnHand, "stock unchanged")
}

func TestAdjustInventoryWritesLedgerAndRespectsFloor(t *testing.T) {
	ctx := setupSaleEngine(t)
	f := seedSaleFixture(t, ctx, decimal.NewFromInt(4))

	// shrinkage
	onHand, err := workflow.AdjustInventory(ctx, f.product.ID, decimal.NewFromInt(-3), "stocktake shrinkage")
	if err != nil {
		t.Fatalf("AdjustInventory: %v", err)
	}
	mustEqualDecimal(t, "1", onHand, "on hand after shrinkage")

	// cannot adjust below zero
	_, err = workflow.AdjustInventory(ctx, f.product.ID, decimal.NewFromInt(-2), "over-correction")
	var ise *utils.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("want InsufficientStockError, got %v", err)
	}

	// recount upwards
	onHand, err = workflow.AdjustInventory(ctx, f.product.ID, decimal.NewFromInt(6), "recount")
	if err != nil {
		t.Fatalf("AdjustInventory up: %v", err)
	}
	mustEqualDecimal(t, "7", onHand, "on hand after recount")

	db := config.GetDB()
	var adjustments []models.StockLedgerEntry
	if err := db.Where("product_id = ? AND event_type = ?", f.product.ID, models.StockEventAdjustment).
		Order("id ASC").Find(&adjustments).Error; err != nil {
		t.Fatalf("load adjustments: %v", err)
	}
	if len(adjustments) != 2 {
		t.Fatalf("adjustment entries: want 2, got %d", len(adjustments))
	}
	mustEqualDecimal(t, "-3", adjustments[0].Qty, "first adjustment qty")
	mustEqualDecimal(t, "6", adjustments[1].Qty, "second adjustment qty")
	if adjustments[0].Reason != "stocktake shrinkage" {
		t.Fatalf("adjustment reason: got %q", adjustments[0].Reason)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retail-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retail-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=retail_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
