package models

import (
	"context"
	"fmt"
	"time"

	"github.com/elstonfarm/farmbooks_backend/config"
	"github.com/elstonfarm/farmbooks_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommingledItem is one purchase suspected of having hit the wrong party's
// account. Direction records what ingestion believed; Status records what the
// reviewer confirmed. LedgerTransactionId is a dedup back-reference only,
// never an ownership link.
type CommingledItem struct {
	ID                  int              `gorm:"primary_key" json:"id"`
	SessionId           int              `gorm:"index;not null" json:"session_id"`
	Date                time.Time        `gorm:"not null" json:"date"`
	Amount              decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	Description         string           `gorm:"size:255;not null" json:"description"`
	Vendor              string           `gorm:"size:100" json:"vendor,omitempty"`
	OrderReference      string           `gorm:"size:100" json:"order_reference,omitempty"`
	Direction           ItemDirection    `gorm:"type:enum('personal_on_farm','farm_on_personal');size:20;not null" json:"direction"`
	Account             string           `gorm:"size:100" json:"account,omitempty"`
	Source              ItemSource       `gorm:"type:enum('manual','ai_flagged','scanner');default:'manual';size:12;not null" json:"source"`
	LedgerTransactionId *int             `gorm:"index" json:"ledger_transaction_id,omitempty"`
	Confidence          *decimal.Decimal `gorm:"type:decimal(5,4)" json:"confidence,omitempty"`
	FlagReason          string           `gorm:"size:255" json:"flag_reason,omitempty"`
	Status              ItemStatus       `gorm:"type:enum('pending','farm','personal','split','skipped');default:'pending';size:12;not null" json:"status"`
	ResolvedAt          *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy          string           `gorm:"size:100" json:"resolved_by,omitempty"`
	ResolvedNote        string           `gorm:"type:text" json:"resolved_note,omitempty"`
	FarmPortion         *decimal.Decimal `gorm:"type:decimal(20,4)" json:"farm_portion,omitempty"`
	PersonalPortion     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"personal_portion,omitempty"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCommingledItem struct {
	Date                time.Time        `json:"date" validate:"required"`
	Amount              decimal.Decimal  `json:"amount" validate:"required"`
	Description         string           `json:"description" validate:"required"`
	Vendor              string           `json:"vendor"`
	OrderReference      string           `json:"order_reference"`
	Direction           ItemDirection    `json:"direction" validate:"required"`
	Account             string           `json:"account"`
	Source              ItemSource       `json:"source"`
	LedgerTransactionId *int             `json:"ledger_transaction_id"`
	Confidence          *decimal.Decimal `json:"confidence"`
	FlagReason          string           `json:"flag_reason"`
}

type SkippedItem struct {
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

type AddItemsResult struct {
	SessionId      int           `json:"session_id"`
	FiscalYear     int           `json:"fiscal_year"`
	Added          int           `json:"added"`
	Skipped        int           `json:"skipped"`
	SkippedDetails []SkippedItem `json:"skipped_details,omitempty"`
}

type ResolveItemInput struct {
	Status          ItemStatus       `json:"status" binding:"required"`
	Note            string           `json:"note"`
	FarmPortion     *decimal.Decimal `json:"farm_portion"`
	PersonalPortion *decimal.Decimal `json:"personal_portion"`
}

// splitTolerance is one cent: split portions must sum to the item amount
// within rounding.
var splitTolerance = decimal.New(1, -2)

func (input *NewCommingledItem) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return utils.NewEngineError(utils.ErrorCodeValidation, err.Error())
	}
	if !input.Amount.IsPositive() {
		return utils.NewEngineError(utils.ErrorCodeValidation, "amount must be positive")
	}
	return nil
}

// AddCommingledItems ingests a batch into the session for a fiscal year,
// opening the session if absent. Candidates are deduplicated against the
// session by ledger back-reference when present, else by exact
// (vendor, date, amount). Duplicates are reported, not silently dropped.
// The whole batch is rejected before any write if the session is settled or
// any candidate fails validation.
func AddCommingledItems(ctx context.Context, fiscalYear int, inputs []*NewCommingledItem) (*AddItemsResult, error) {
	if fiscalYear <= 0 || len(inputs) == 0 {
		return nil, utils.NewEngineError(utils.ErrorCodeValidation, "fiscalYear and items[] required")
	}
	for _, input := range inputs {
		if err := input.validate(); err != nil {
			return nil, err
		}
		if input.LedgerTransactionId != nil {
			if err := utils.ValidateResourceId[LedgerTransaction](ctx, *input.LedgerTransactionId); err != nil {
				return nil, utils.NewEngineError(utils.ErrorCodeValidation,
					fmt.Sprintf("ledger transaction %d not found", *input.LedgerTransactionId))
			}
		}
	}

	db := config.GetDB()
	result := AddItemsResult{FiscalYear: fiscalYear}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := findOrCreateSessionTx(ctx, tx, fiscalYear)
		if err != nil {
			return err
		}
		result.SessionId = session.ID

		for _, input := range inputs {
			dup, reason, err := findDuplicateTx(tx, session.ID, input)
			if err != nil {
				return err
			}
			if dup {
				result.Skipped++
				result.SkippedDetails = append(result.SkippedDetails, SkippedItem{
					Description: input.Description,
					Reason:      reason,
				})
				continue
			}

			source := input.Source
			if source == "" {
				source = ItemSourceManual
			}
			item := CommingledItem{
				SessionId:           session.ID,
				Date:                input.Date,
				Amount:              input.Amount,
				Description:         input.Description,
				Vendor:              input.Vendor,
				OrderReference:      input.OrderReference,
				Direction:           input.Direction,
				Account:             input.Account,
				Source:              source,
				LedgerTransactionId: input.LedgerTransactionId,
				Confidence:          input.Confidence,
				FlagReason:          input.FlagReason,
				Status:              ItemStatusPending,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func findDuplicateTx(tx *gorm.DB, sessionId int, input *NewCommingledItem) (bool, string, error) {
	var count int64
	if input.LedgerTransactionId != nil {
		err := tx.Model(&CommingledItem{}).
			Where("session_id = ? AND ledger_transaction_id = ?", sessionId, *input.LedgerTransactionId).
			Count(&count).Error
		if err != nil {
			return false, "", err
		}
		if count > 0 {
			return true, "Transaction already in queue", nil
		}
		return false, "", nil
	}

	err := tx.Model(&CommingledItem{}).
		Where("session_id = ? AND vendor = ? AND date = ? AND amount = ?",
			sessionId, input.Vendor, input.Date, input.Amount).
		Count(&count).Error
	if err != nil {
		return false, "", err
	}
	if count > 0 {
		return true, "Duplicate vendor+date+amount", nil
	}
	return false, "", nil
}

// validateSplit checks split portions against the item amount and returns the
// portions to store: both set for splits, both nil for every other status so a
// re-resolution clears stale portions.
func (input *ResolveItemInput) validateSplit(amount decimal.Decimal) (*decimal.Decimal, *decimal.Decimal, error) {
	if input.Status != ItemStatusSplit {
		return nil, nil, nil
	}
	if input.FarmPortion == nil || input.PersonalPortion == nil {
		return nil, nil, utils.NewEngineError(utils.ErrorCodeInvalidSplit,
			"farmPortion and personalPortion required for split items")
	}
	if input.FarmPortion.IsNegative() || input.PersonalPortion.IsNegative() {
		return nil, nil, utils.NewEngineError(utils.ErrorCodeInvalidSplit,
			"split portions must not be negative")
	}
	diff := input.FarmPortion.Add(*input.PersonalPortion).Sub(amount).Abs()
	if diff.GreaterThan(splitTolerance) {
		return nil, nil, utils.NewEngineError(utils.ErrorCodeInvalidSplit,
			fmt.Sprintf("split portions must sum to the item amount ($%s)", utils.Money(amount)))
	}
	return input.FarmPortion, input.PersonalPortion, nil
}

// ResolveCommingledItem is the "swipe": it moves an item to a terminal
// classification and returns the updated item plus a plain-language statement
// of the dollar impact on the eventual settlement. Re-resolution simply
// overwrites the previous classification while the session stays open.
func ResolveCommingledItem(ctx context.Context, id int, input *ResolveItemInput) (*CommingledItem, string, error) {
	if !input.Status.IsTerminal() {
		return nil, "", utils.NewEngineError(utils.ErrorCodeValidation,
			`status must be "farm", "personal", "split", or "skipped"`)
	}

	db := config.GetDB()

	item, err := utils.FetchModel[CommingledItem](ctx, id)
	if err != nil {
		return nil, "", err
	}
	session, err := utils.FetchModel[ReconciliationSession](ctx, item.SessionId)
	if err != nil {
		return nil, "", err
	}
	if err := session.ensureItemsMutable("modify"); err != nil {
		return nil, "", err
	}

	farmPortion, personalPortion, err := input.validateSplit(item.Amount)
	if err != nil {
		return nil, "", err
	}

	// The subquery guard re-checks the parent session at write time, closing
	// the window between the read above and a concurrent settlement flipping
	// the session to settled.
	now := time.Now().UTC()
	result := db.WithContext(ctx).Model(&CommingledItem{}).
		Where("id = ? AND (SELECT status FROM reconciliation_sessions WHERE id = ?) = ?",
			item.ID, item.SessionId, SessionStatusOpen).
		Updates(map[string]interface{}{
			"status":           input.Status,
			"resolved_at":      now,
			"resolved_by":      utils.ResolvedBy(ctx),
			"resolved_note":    input.Note,
			"farm_portion":     farmPortion,
			"personal_portion": personalPortion,
		})
	if result.Error != nil {
		return nil, "", result.Error
	}
	if result.RowsAffected == 0 {
		return nil, "", utils.NewEngineError(utils.ErrorCodeSessionClosed,
			"Session already settled. Cannot modify items.")
	}

	item.Status = input.Status
	item.ResolvedAt = &now
	item.ResolvedBy = utils.ResolvedBy(ctx)
	item.ResolvedNote = input.Note
	item.FarmPortion = farmPortion
	item.PersonalPortion = personalPortion

	return item, ResolutionImpact(item), nil
}

// RemoveCommingledItem deletes an item from the queue. Allowed in any state
// while the parent session is open; settled sessions are immutable.
func RemoveCommingledItem(ctx context.Context, id int) error {
	db := config.GetDB()

	item, err := utils.FetchModel[CommingledItem](ctx, id)
	if err != nil {
		return err
	}
	session, err := utils.FetchModel[ReconciliationSession](ctx, item.SessionId)
	if err != nil {
		return err
	}
	if err := session.ensureItemsMutable("remove"); err != nil {
		return err
	}

	// Same write-time guard as resolution: the delete only lands while the
	// parent session is still open.
	result := db.WithContext(ctx).
		Where("id = ? AND (SELECT status FROM reconciliation_sessions WHERE id = ?) = ?",
			item.ID, item.SessionId, SessionStatusOpen).
		Delete(&CommingledItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.NewEngineError(utils.ErrorCodeSessionClosed,
			"Session already settled. Cannot remove items.")
	}
	return nil
}
