package models

import (
	"log"

	"bitbucket.org/mmdatafocus/retail_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Product{},
		&CustomerTier{}, &Customer{},
		&Tax{}, &Employee{}, &PaymentMethod{},
		&Sale{}, &SaleDetail{},
		&StockLedgerEntry{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
