package models

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "Pending"
	SaleStatusCompleted SaleStatus = "Completed"
	SaleStatusCancelled SaleStatus = "Cancelled"
	SaleStatusRefunded  SaleStatus = "Refunded"
)

type StockEventType string

const (
	StockEventPurchase   StockEventType = "Purchase"
	StockEventSale       StockEventType = "Sale"
	StockEventReturn     StockEventType = "Return"
	StockEventAdjustment StockEventType = "Adjustment"
	StockEventTransfer   StockEventType = "Transfer"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "P"
	DiscountTypeAmount     DiscountType = "A"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
