package render

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
	"github.com/xuri/excelize/v2"
)

const statementSheet = "Commissions"

var statementHeader = []any{"Commission ID", "Referral ID", "Order ID", "Payment ID", "Amount", "Currency", "Status", "Created At"}

type CommissionStatement struct{}

func NewCommissionStatement() *CommissionStatement { return &CommissionStatement{} }

func (CommissionStatement) RenderCommissionStatement(affiliate domain.AffiliateProfile, rows []domain.CommissionEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := [][]any{
		{"Affiliate", affiliate.FirmName},
		{"Referral Code", affiliate.ReferralCode},
		{},
		statementHeader,
	}
	for i, values := range header {
		if len(values) == 0 {
			continue
		}
		if err := setRow(f, i+1, values); err != nil {
			return nil, err
		}
	}

	first := len(header) + 1
	totals := map[string]decimal.Decimal{}
	for i, row := range rows {
		amount := decimal.New(row.AmountMinor, -2)
		totals[row.Currency] = totals[row.Currency].Add(amount)
		values := []any{
			row.CommissionID, row.ReferralID, row.OrderID, row.PaymentID,
			amount.InexactFloat64(), row.Currency, string(row.Status),
			row.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := setRow(f, first+i, values); err != nil {
			return nil, err
		}
	}

	next := first + len(rows) + 1
	for _, currency := range sortedKeys(totals) {
		if err := setRow(f, next, []any{"Total " + currency, "", "", "", totals[currency].InexactFloat64(), currency}); err != nil {
			return nil, err
		}
		next++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write statement: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(statementSheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var _ ports.StatementRenderer = CommissionStatement{}
