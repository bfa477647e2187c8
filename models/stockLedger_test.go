package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockLedgerEntryIsAppendOnly(t *testing.T) {
	entry := &StockLedgerEntry{}

	require.Error(t, entry.BeforeUpdate(nil))
	require.Error(t, entry.BeforeDelete(nil))
}

func TestRecordStockLedgerRejectsInvalidEntries(t *testing.T) {
	cases := []struct {
		name  string
		entry StockLedgerEntry
	}{
		{"missing product", StockLedgerEntry{Qty: decimal.NewFromInt(1), EventType: StockEventSale}},
		{"zero qty", StockLedgerEntry{ProductId: 1, EventType: StockEventAdjustment}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := RecordStockLedger(nil, &tc.entry)
			require.Error(t, err)
			var verr *utils.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}
