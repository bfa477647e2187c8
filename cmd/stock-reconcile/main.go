// stock-reconcile compares each product's stock_on_hand against the sum of
// its stock ledger entries and reports drift. The ledger is authoritative:
// with --fix, stock_on_hand is rewritten to the ledger sum.
//
// Usage:
//
//	go run ./cmd/stock-reconcile [--product-id N] [--fix]
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"github.com/shopspring/decimal"
)

type driftRow struct {
	ProductId   int
	Sku         string
	StockOnHand decimal.Decimal
	LedgerSum   decimal.Decimal
}

func main() {
	productID := flag.Int("product-id", 0, "Optional: limit to one product")
	fix := flag.Bool("fix", false, "Rewrite stock_on_hand to the ledger sum")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	query := `
		SELECT p.id AS product_id, p.sku, p.stock_on_hand,
		       COALESCE(SUM(e.qty), 0) AS ledger_sum
		FROM products p
		LEFT JOIN stock_ledger_entries e ON e.product_id = p.id
	`
	args := []interface{}{}
	if *productID > 0 {
		query += " WHERE p.id = ?"
		args = append(args, *productID)
	}
	query += " GROUP BY p.id, p.sku, p.stock_on_hand HAVING p.stock_on_hand <> COALESCE(SUM(e.qty), 0)"

	var drifts []driftRow
	if err := db.Raw(query, args...).Scan(&drifts).Error; err != nil {
		fmt.Fprintf(os.Stderr, "query drift: %v\n", err)
		os.Exit(1)
	}

	if len(drifts) == 0 {
		fmt.Println("no drift: every product matches its ledger")
		return
	}

	for _, row := range drifts {
		delta := row.LedgerSum.Sub(row.StockOnHand)
		fmt.Printf("product %d (%s): on_hand=%s ledger=%s delta=%s\n",
			row.ProductId, row.Sku, row.StockOnHand, row.LedgerSum, delta)

		if !*fix {
			continue
		}
		// Lock the row so a concurrent sale doesn't race the rewrite.
		tx := db.Begin()
		if err := tx.Exec("SELECT id FROM products WHERE id = ? FOR UPDATE", row.ProductId).Error; err != nil {
			tx.Rollback()
			fmt.Fprintf(os.Stderr, "lock product %d: %v\n", row.ProductId, err)
			os.Exit(1)
		}
		if err := tx.Exec(`
			UPDATE products p
			SET p.stock_on_hand = (
				SELECT COALESCE(SUM(e.qty), 0) FROM stock_ledger_entries e WHERE e.product_id = p.id
			)
			WHERE p.id = ?`, row.ProductId).Error; err != nil {
			tx.Rollback()
			fmt.Fprintf(os.Stderr, "fix product %d: %v\n", row.ProductId, err)
			os.Exit(1)
		}
		if err := tx.Commit().Error; err != nil {
			fmt.Fprintf(os.Stderr, "commit fix for product %d: %v\n", row.ProductId, err)
			os.Exit(1)
		}
		fmt.Printf("fixed product %d: stock_on_hand=%s\n", row.ProductId, row.LedgerSum)
	}

	if !*fix {
		fmt.Printf("%d product(s) with drift (rerun with --fix to correct)\n", len(drifts))
		os.Exit(3)
	}
}
