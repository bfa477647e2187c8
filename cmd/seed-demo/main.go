// seed-demo populates a fresh database with a minimal demo dataset: customer
// tiers, a tax rate, a payment method, an employee, one customer and a couple
// of products with opening stock. Safe to rerun; existing rows are kept.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	tiers := []models.NewCustomerTier{
		{Name: "Standard", MinimumSpend: decimal.Zero, DiscountPercent: decimal.Zero},
		{Name: "Silver", MinimumSpend: decimal.NewFromInt(200000), DiscountPercent: decimal.NewFromInt(5)},
		{Name: "Gold", MinimumSpend: decimal.NewFromInt(500000), DiscountPercent: decimal.NewFromInt(10)},
	}
	var goldTierId int
	for _, tier := range tiers {
		created, err := models.CreateCustomerTier(ctx, &tier)
		if err != nil {
			var verr *utils.ValidationError
			if errors.As(err, &verr) {
				fmt.Printf("tier %q already present, skipping\n", tier.Name)
				continue
			}
			fail("create tier %q: %v", tier.Name, err)
		}
		fmt.Printf("created tier %q (id=%d)\n", created.Name, created.ID)
		if created.Name == "Gold" {
			goldTierId = created.ID
		}
	}
	if goldTierId == 0 {
		existing, err := models.ListCustomerTiers(ctx)
		if err != nil {
			fail("list tiers: %v", err)
		}
		for _, tier := range existing {
			if tier.Name == "Gold" {
				goldTierId = tier.ID
			}
		}
	}

	if _, err := models.CreateTax(ctx, &models.NewTax{
		Name: "Commercial Tax",
		Rate: decimal.NewFromInt(18),
	}); err != nil {
		warnOrFail("create tax", err)
	}

	if _, err := models.CreatePaymentMethod(ctx, &models.NewPaymentMethod{Name: "Cash"}); err != nil {
		warnOrFail("create payment method", err)
	}

	if _, err := models.CreateEmployee(ctx, &models.NewEmployee{
		Name:  "Demo Cashier",
		Email: "cashier@demo.local",
	}); err != nil {
		warnOrFail("create employee", err)
	}

	if goldTierId > 0 {
		existing, err := utils.ResourceCountWhere[models.Customer](ctx, "email = ?", "customer@demo.local")
		if err != nil {
			fail("check customer: %v", err)
		}
		if existing == 0 {
			if _, err := models.CreateCustomer(ctx, &models.NewCustomer{
				Name:   "Demo Customer",
				Email:  "customer@demo.local",
				TierId: goldTierId,
			}); err != nil {
				warnOrFail("create customer", err)
			}
		} else {
			fmt.Println("create customer: already present, skipping")
		}
	}

	products := []models.NewProduct{
		{
			Name:         "Espresso Machine",
			Sku:          "ESP-9000",
			SalesPrice:   decimal.NewFromInt(85000),
			PurchaseCost: decimal.NewFromInt(60000),
			OpeningStock: decimal.NewFromInt(25),
			ReorderLevel: decimal.NewFromInt(5),
		},
		{
			Name:         "Coffee Grinder",
			Sku:          "GRD-200",
			SalesPrice:   decimal.NewFromInt(32000),
			PurchaseCost: decimal.NewFromInt(21000),
			OpeningStock: decimal.NewFromInt(40),
			ReorderLevel: decimal.NewFromInt(10),
		},
	}
	for _, product := range products {
		created, err := models.CreateProduct(ctx, &product)
		if err != nil {
			warnOrFail(fmt.Sprintf("create product %q", product.Sku), err)
			continue
		}
		fmt.Printf("created product %q (id=%d, stock=%s)\n", created.Sku, created.ID, created.StockOnHand)
	}

	fmt.Println("demo seed complete")
}

func warnOrFail(what string, err error) {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		fmt.Printf("%s: already present, skipping\n", what)
		return
	}
	fail("%s: %v", what, err)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
