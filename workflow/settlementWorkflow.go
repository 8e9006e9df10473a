package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elstonfarm/farmbooks_backend/config"
	"github.com/elstonfarm/farmbooks_backend/models"
	"github.com/elstonfarm/farmbooks_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SettleSessionInput struct {
	FiscalYear          int                         `json:"fiscal_year" binding:"required"`
	Resolution          models.SettlementResolution `json:"resolution" binding:"required"`
	SettlementAmount    *decimal.Decimal            `json:"settlement_amount"`
	SettlementMethod    string                      `json:"settlement_method"`
	SettlementReference string                      `json:"settlement_reference"`
	Note                string                      `json:"note"`
	// PostToLedger defaults to true when omitted.
	PostToLedger *bool `json:"post_to_ledger"`
}

type SettlementSummary struct {
	FiscalYear          int                         `json:"fiscal_year"`
	Status              models.SessionStatus        `json:"status"`
	PersonalOnFarm      decimal.Decimal             `json:"personal_on_farm"`
	FarmOnPersonal      decimal.Decimal             `json:"farm_on_personal"`
	NetBalance          decimal.Decimal             `json:"net_balance"`
	NetDirection        string                      `json:"net_direction"`
	Resolution          models.SettlementResolution `json:"resolution"`
	SettlementAmount    decimal.Decimal             `json:"settlement_amount"`
	PadAmount           *decimal.Decimal            `json:"pad_amount,omitempty"`
	PadNote             string                      `json:"pad_note,omitempty"`
	LedgerTransactionId *int                        `json:"ledger_transaction_id,omitempty"`
	LedgerType          *models.LedgerEntryType     `json:"ledger_type,omitempty"`
	Readable            string                      `json:"readable"`
}

type PendingItemDetail struct {
	ID          int             `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Vendor      string          `json:"vendor,omitempty"`
}

// settlementPlan is the database-free half of settling: the guards, the
// stamped values, and the response summary, all derived from a session
// snapshot and its items. SettleSession applies it under the conditional
// update; when planning fails nothing is written.
type settlementPlan struct {
	Tallies          models.SessionTallies
	ActualSettlement decimal.Decimal
	PadAmount        decimal.Decimal
	Updates          map[string]interface{}
	Summary          *SettlementSummary
}

// planSettlement validates that the session can settle and computes everything
// the settlement will stamp. Returns AlreadySettled for a non-open session and
// ItemsPending (carrying the offending items) when anything is unresolved.
func planSettlement(session *models.ReconciliationSession, items []*models.CommingledItem, input *SettleSessionInput, settledBy string, now time.Time) (*settlementPlan, error) {
	if session.Status != models.SessionStatusOpen {
		return nil, utils.NewEngineError(utils.ErrorCodeAlreadySettled, "Session already settled")
	}

	pending := make([]PendingItemDetail, 0)
	for _, item := range items {
		if item.Status == models.ItemStatusPending {
			pending = append(pending, PendingItemDetail{
				ID:          item.ID,
				Description: item.Description,
				Amount:      item.Amount,
				Vendor:      item.Vendor,
			})
		}
	}
	if len(pending) > 0 {
		return nil, utils.NewEngineErrorWithDetails(utils.ErrorCodeItemsPending,
			fmt.Sprintf("%d items still pending. Resolve or skip all items before settling.", len(pending)),
			pending)
	}

	tallies := models.ComputeTallies(items)
	actualSettlement, padAmount := computeSettlement(tallies.NetBalance, input.SettlementAmount)

	updates := map[string]interface{}{
		"status":                 models.SessionStatusSettled,
		"settled_at":             now,
		"settled_by":             settledBy,
		"personal_on_farm_total": tallies.PersonalOnFarm,
		"farm_on_personal_total": tallies.FarmOnPersonal,
		"net_balance":            tallies.NetBalance,
		"item_count":             tallies.ItemCount,
		"resolved_count":         tallies.ResolvedCount,
		"resolution":             input.Resolution,
		"settlement_amount":      actualSettlement,
		"settlement_method":      nilIfEmpty(input.SettlementMethod),
		"settlement_reference":   nilIfEmpty(input.SettlementReference),
		"settlement_note":        nilIfEmpty(input.Note),
		"pad_amount":             nil,
	}
	if padAmount.IsPositive() {
		updates["pad_amount"] = padAmount
	}

	summary := &SettlementSummary{
		FiscalYear:       input.FiscalYear,
		Status:           models.SessionStatusSettled,
		PersonalOnFarm:   tallies.PersonalOnFarm,
		FarmOnPersonal:   tallies.FarmOnPersonal,
		NetBalance:       tallies.NetBalance,
		NetDirection:     models.NetDirection(tallies.NetBalance),
		Resolution:       input.Resolution,
		SettlementAmount: actualSettlement,
	}
	if padAmount.IsPositive() {
		pad := padAmount
		summary.PadAmount = &pad
		summary.PadNote = fmt.Sprintf("Rounded up by $%s as additional donation", utils.Money(padAmount))
	}
	summary.Readable = readableSummary(input.Resolution, tallies.NetBalance, actualSettlement, padAmount, input.SettlementMethod)

	return &settlementPlan{
		Tallies:          tallies,
		ActualSettlement: actualSettlement,
		PadAmount:        padAmount,
		Updates:          updates,
		Summary:          summary,
	}, nil
}

// SettleSession closes a reconciliation session: recomputes the tallies,
// stamps the settlement snapshot, flips the session open -> settled under a
// conditional update, and optionally posts one ledger record. All writes
// commit as one unit; a lost race or a last-moment pending item leaves the
// session and its items untouched.
func SettleSession(ctx context.Context, db *gorm.DB, logger *logrus.Logger, ledger models.LedgerPoster, input *SettleSessionInput) (*SettlementSummary, error) {
	if input.FiscalYear <= 0 || input.Resolution == "" {
		return nil, utils.NewEngineError(utils.ErrorCodeValidation, "fiscalYear and resolution required")
	}

	var summary *SettlementSummary
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireSettlementLock(tx, input.FiscalYear); err != nil {
			config.LogError(logger, "settlementWorkflow.go", "SettleSession", "AcquireSettlementLock", input.FiscalYear, err)
			return err
		}
		defer ReleaseSettlementLock(tx, input.FiscalYear)

		var session models.ReconciliationSession
		err := tx.Where("fiscal_year = ?", input.FiscalYear).First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			config.LogError(logger, "settlementWorkflow.go", "SettleSession", "FetchSession", input.FiscalYear, err)
			return err
		}

		var items []*models.CommingledItem
		if err := tx.Where("session_id = ?", session.ID).Find(&items).Error; err != nil {
			config.LogError(logger, "settlementWorkflow.go", "SettleSession", "FetchItems", session.ID, err)
			return err
		}

		plan, err := planSettlement(&session, items, input, utils.ResolvedBy(ctx), time.Now().UTC())
		if err != nil {
			return err
		}

		// The status guard inside the UPDATE is the commit-time check: a
		// concurrent settlement that already flipped the row makes
		// RowsAffected zero here, and this transaction rolls back untouched.
		result := tx.Model(&models.ReconciliationSession{}).
			Where("id = ? AND status = ?", session.ID, models.SessionStatusOpen).
			Updates(plan.Updates)
		if result.Error != nil {
			config.LogError(logger, "settlementWorkflow.go", "SettleSession", "UpdateSession", session.ID, result.Error)
			return result.Error
		}
		if result.RowsAffected == 0 {
			return utils.NewEngineError(utils.ErrorCodeAlreadySettled, "Session already settled")
		}

		summary = plan.Summary

		if shouldPostToLedger(input, plan.ActualSettlement) {
			posting := settlementPosting(input, plan.ActualSettlement, plan.PadAmount)
			ledgerId, err := ledger.PostLedgerEntry(ctx, tx, posting)
			if err != nil {
				config.LogError(logger, "settlementWorkflow.go", "SettleSession", "PostLedgerEntry", posting, err)
				return err
			}
			summary.LedgerTransactionId = &ledgerId
			ledgerType := posting.Direction
			summary.LedgerType = &ledgerType
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// computeSettlement applies the override rule: the settled amount is the
// override when given, else |netBalance|; any excess over |netBalance| is the
// pad (a voluntary extra contribution), never negative.
func computeSettlement(netBalance decimal.Decimal, override *decimal.Decimal) (actual, pad decimal.Decimal) {
	actual = netBalance.Abs()
	pad = decimal.Zero
	if override != nil {
		actual = override.Round(2)
		if actual.GreaterThan(netBalance.Abs()) {
			pad = actual.Sub(netBalance.Abs()).Round(2)
		}
	}
	return actual, pad
}

func shouldPostToLedger(input *SettleSessionInput, actualSettlement decimal.Decimal) bool {
	if input.PostToLedger != nil && !*input.PostToLedger {
		return false
	}
	return input.Resolution != models.ResolutionZeroBalance && actualSettlement.IsPositive()
}

// settlementPosting builds the one ledger record a settlement produces.
// Donations post as tax-deductible income; reimbursement posts as an expense.
// The record is dated at settlement time and carries the settlement year; the
// description names the reconciled year and any pad.
func settlementPosting(input *SettleSessionInput, actualSettlement, padAmount decimal.Decimal) models.LedgerPosting {
	now := time.Now().UTC()

	padSuffix := ""
	if padAmount.IsPositive() {
		padSuffix = fmt.Sprintf(" (includes $%s extra)", utils.Money(padAmount))
	}

	posting := models.LedgerPosting{
		Date:       now,
		Amount:     actualSettlement,
		FiscalYear: now.Year(),
		Method:     input.SettlementMethod,
		Reference:  input.SettlementReference,
	}

	switch input.Resolution {
	case models.ResolutionDonationToFarm:
		posting.Direction = models.LedgerEntryTypeIncome
		posting.Description = fmt.Sprintf("FY%d reconciliation — founder donation to cover personal-on-farm expenses%s", input.FiscalYear, padSuffix)
		posting.TaxDeductible = true
		posting.TaxCategory = "Part VIII, Line 1 (contributions)"
		if posting.Reference == "" {
			posting.Reference = fmt.Sprintf("reconciliation-%d", input.FiscalYear)
		}
		if posting.Method == "" {
			posting.Method = "internal"
		}
	case models.ResolutionDonationFromFounder:
		posting.Direction = models.LedgerEntryTypeIncome
		posting.Description = fmt.Sprintf("FY%d reconciliation — founder donated farm-owed reimbursement back to org%s", input.FiscalYear, padSuffix)
		posting.TaxDeductible = true
		posting.TaxCategory = "Part VIII, Line 1 (contributions)"
		if posting.Reference == "" {
			posting.Reference = fmt.Sprintf("reconciliation-%d", input.FiscalYear)
		}
		if posting.Method == "" {
			posting.Method = "internal"
		}
	case models.ResolutionReimbursementToFounder:
		posting.Direction = models.LedgerEntryTypeExpense
		posting.Description = fmt.Sprintf("FY%d reconciliation — reimbursement to founder for farm expenses on personal accounts%s", input.FiscalYear, padSuffix)
		if posting.Reference == "" {
			posting.Reference = fmt.Sprintf("reimbursement-%d", input.FiscalYear)
		}
		if posting.Method == "" {
			posting.Method = "check"
		}
	}
	return posting
}

func readableSummary(resolution models.SettlementResolution, netBalance, actualSettlement, padAmount decimal.Decimal, method string) string {
	abs := utils.Money(netBalance.Abs())
	switch resolution {
	case models.ResolutionDonationToFarm:
		s := fmt.Sprintf("Fred owed the farm $%s. Donated $%s to settle", abs, utils.Money(actualSettlement))
		if padAmount.IsPositive() {
			s += fmt.Sprintf(" (+$%s pad)", utils.Money(padAmount))
		}
		return s + ". Recorded as tax-deductible contribution."
	case models.ResolutionDonationFromFounder:
		s := fmt.Sprintf("Farm owed Fred $%s. Fred donated the balance back", abs)
		if padAmount.IsPositive() {
			s += fmt.Sprintf(" (+$%s extra)", utils.Money(padAmount))
		}
		return s + ". Recorded as tax-deductible contribution."
	case models.ResolutionReimbursementToFounder:
		if method == "" {
			method = "check"
		}
		return fmt.Sprintf("Farm owed Fred $%s. Reimbursed $%s via %s.", abs, utils.Money(actualSettlement), method)
	default:
		return fmt.Sprintf("Net balance was $%s — close enough to zero. No settlement required.", abs)
	}
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
