package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerTransaction is the general ledger's income/expense record. The
// reconciliation engine touches it in exactly two places: auto-populating a
// session from rows flagged as commingled, and writing the one settlement
// posting. Everything else about the ledger lives outside this engine.
type LedgerTransaction struct {
	ID            int               `gorm:"primary_key" json:"id"`
	Date          time.Time         `gorm:"index;not null" json:"date"`
	Amount        decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"amount"`
	Type          LedgerEntryType   `gorm:"type:enum('income','expense');size:12;not null" json:"type"`
	Description   string            `gorm:"size:500;not null" json:"description"`
	Vendor        string            `gorm:"size:100" json:"vendor,omitempty"`
	Reference     string            `gorm:"size:100" json:"reference,omitempty"`
	PaymentMethod string            `gorm:"size:50" json:"payment_method,omitempty"`
	Source        string            `gorm:"size:50" json:"source,omitempty"`
	FiscalYear    int               `gorm:"index;not null" json:"fiscal_year"`
	Status        LedgerEntryStatus `gorm:"type:enum('recorded','verified','flagged');default:'recorded';size:12;not null" json:"status"`
	FlagReason    string            `gorm:"size:255" json:"flag_reason,omitempty"`
	TaxDeductible *bool             `json:"tax_deductible,omitempty"`
	TaxCategory   string            `gorm:"size:100" json:"tax_category,omitempty"`
	CreatedBy     string            `gorm:"size:100" json:"created_by,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// LedgerPosting is the full contract the engine has with the ledger: one
// record, stated in the ledger's terms. The engine must not depend on the
// ledger schema beyond this.
type LedgerPosting struct {
	Date          time.Time
	Amount        decimal.Decimal
	Direction     LedgerEntryType
	Description   string
	Reference     string
	Method        string
	TaxDeductible bool
	TaxCategory   string
	FiscalYear    int
}

// LedgerPoster is the port the settlement workflow posts through. The gorm
// implementation below writes into this schema's ledger table; tests swap in
// a recorder.
type LedgerPoster interface {
	PostLedgerEntry(ctx context.Context, tx *gorm.DB, posting LedgerPosting) (int, error)
}

type GormLedger struct{}

func (GormLedger) PostLedgerEntry(ctx context.Context, tx *gorm.DB, posting LedgerPosting) (int, error) {
	record := LedgerTransaction{
		Date:          posting.Date,
		Amount:        posting.Amount,
		Type:          posting.Direction,
		Description:   posting.Description,
		Reference:     posting.Reference,
		PaymentMethod: posting.Method,
		Source:        "reconciliation",
		FiscalYear:    posting.FiscalYear,
		Status:        LedgerEntryStatusVerified,
		CreatedBy:     "reconciliation-system",
		TaxCategory:   posting.TaxCategory,
	}
	if posting.TaxDeductible {
		deductible := true
		record.TaxDeductible = &deductible
	}
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		return 0, err
	}
	return record.ID, nil
}

// FlaggedCommingledTransactions returns the year's ledger rows that upstream
// scanning flagged as commingled, for session auto-populate.
func FlaggedCommingledTransactions(tx *gorm.DB, fiscalYear int) ([]*LedgerTransaction, error) {
	var flagged []*LedgerTransaction
	err := tx.
		Where("fiscal_year = ? AND status = ?", fiscalYear, LedgerEntryStatusFlagged).
		Where("flag_reason LIKE ?", "%commingled%").
		Find(&flagged).Error
	if err != nil {
		return nil, err
	}
	return flagged, nil
}
