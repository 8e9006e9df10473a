package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elstonfarm/farmbooks_backend/config"
	"github.com/elstonfarm/farmbooks_backend/utils"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconciliationSession is the yearly unit of work: one session per fiscal
// year, holding the commingled items under review. It transitions
// open -> settled exactly once; settled sessions and their items are immutable.
type ReconciliationSession struct {
	ID         int           `gorm:"primary_key" json:"id"`
	FiscalYear int           `gorm:"uniqueIndex;not null" json:"fiscal_year"`
	Status     SessionStatus `gorm:"type:enum('open','settled');default:'open';size:12;not null" json:"status"`
	OpenedAt   time.Time     `gorm:"not null" json:"opened_at"`
	OpenedBy   string        `gorm:"size:100" json:"opened_by"`
	SettledAt  *time.Time    `json:"settled_at,omitempty"`
	SettledBy  *string       `gorm:"size:100" json:"settled_by,omitempty"`

	// Settlement snapshot, written once by the settlement workflow.
	Resolution          *SettlementResolution `gorm:"size:30" json:"resolution,omitempty"`
	SettlementAmount    *decimal.Decimal      `gorm:"type:decimal(20,4)" json:"settlement_amount,omitempty"`
	SettlementMethod    *string               `gorm:"size:50" json:"settlement_method,omitempty"`
	SettlementReference *string               `gorm:"size:100" json:"settlement_reference,omitempty"`
	SettlementNote      *string               `gorm:"type:text" json:"settlement_note,omitempty"`
	PadAmount           *decimal.Decimal      `gorm:"type:decimal(20,4)" json:"pad_amount,omitempty"`
	PersonalOnFarmTotal *decimal.Decimal      `gorm:"type:decimal(20,4)" json:"personal_on_farm_total,omitempty"`
	FarmOnPersonalTotal *decimal.Decimal      `gorm:"type:decimal(20,4)" json:"farm_on_personal_total,omitempty"`
	NetBalance          *decimal.Decimal      `gorm:"type:decimal(20,4)" json:"net_balance,omitempty"`
	ItemCount           *int                  `json:"item_count,omitempty"`
	ResolvedCount       *int                  `json:"resolved_count,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Items []*CommingledItem `gorm:"foreignKey:SessionId" json:"items,omitempty"`
}

type SessionSummary struct {
	ReconciliationSession
	TotalItems int `json:"total_items"`
}

type SessionProgress struct {
	Total           int `json:"total"`
	Pending         int `json:"pending"`
	Resolved        int `json:"resolved"`
	Skipped         int `json:"skipped"`
	PercentComplete int `json:"percent_complete"`
}

type SessionDetail struct {
	Session  *ReconciliationSession `json:"session"`
	Progress SessionProgress        `json:"progress"`
	Tallies  SessionTallies         `json:"tallies"`
	Items    []*CommingledItem      `json:"items"`
}

type OpenSessionResult struct {
	Session       *ReconciliationSession `json:"session"`
	AutoPopulated int                    `json:"auto_populated"`
	Message       string                 `json:"message"`
}

const mysqlDuplicateEntry = 1062

// ensureItemsMutable rejects item mutations once the session is settled. The
// verb names the attempted mutation in the error message ("add", "modify",
// "remove").
func (s *ReconciliationSession) ensureItemsMutable(verb string) error {
	if s.Status == SessionStatusSettled {
		return utils.NewEngineError(utils.ErrorCodeSessionClosed,
			fmt.Sprintf("Session already settled. Cannot %s items.", verb))
	}
	return nil
}

// OpenReconciliationSession opens the session for a fiscal year explicitly.
// When autoPopulate is set, ledger transactions of that year flagged as
// commingled are pulled into the queue as pending items (direction defaults to
// personal_on_farm; the reviewer corrects it during resolution).
func OpenReconciliationSession(ctx context.Context, fiscalYear int, autoPopulate bool) (*OpenSessionResult, error) {
	if fiscalYear <= 0 {
		return nil, utils.NewEngineError(utils.ErrorCodeValidation, "fiscalYear required")
	}

	db := config.GetDB()

	var existing ReconciliationSession
	err := db.WithContext(ctx).Where("fiscal_year = ?", fiscalYear).First(&existing).Error
	if err == nil {
		return nil, utils.NewEngineErrorWithDetails(utils.ErrorCodeAlreadyExists,
			fmt.Sprintf("Session for %d already exists (status: %s)", fiscalYear, existing.Status), &existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	session := ReconciliationSession{
		FiscalYear: fiscalYear,
		Status:     SessionStatusOpen,
		OpenedAt:   time.Now().UTC(),
		OpenedBy:   utils.ResolvedBy(ctx),
	}

	autoAdded := 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			// The unique index on fiscal_year closes the check-then-create race.
			var mysqlErr *mysql.MySQLError
			if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
				return utils.NewEngineError(utils.ErrorCodeAlreadyExists,
					fmt.Sprintf("Session for %d already exists", fiscalYear))
			}
			return err
		}

		if !autoPopulate {
			return nil
		}

		flagged, err := FlaggedCommingledTransactions(tx, fiscalYear)
		if err != nil {
			return err
		}
		for _, ledgerTx := range flagged {
			txId := ledgerTx.ID
			item := CommingledItem{
				SessionId:           session.ID,
				Date:                ledgerTx.Date,
				Amount:              ledgerTx.Amount,
				Description:         ledgerTx.Description,
				Vendor:              ledgerTx.Vendor,
				OrderReference:      ledgerTx.Reference,
				Direction:           DirectionPersonalOnFarm,
				Source:              ItemSourceAiFlagged,
				LedgerTransactionId: &txId,
				FlagReason:          ledgerTx.FlagReason,
				Status:              ItemStatusPending,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			autoAdded++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	message := "Session opened. Add items manually or run the scanner to populate."
	if autoAdded > 0 {
		message = fmt.Sprintf("Session opened. %d flagged transactions pulled into queue.", autoAdded)
	}
	return &OpenSessionResult{Session: &session, AutoPopulated: autoAdded, Message: message}, nil
}

// findOrCreateSessionTx resolves the open session for a fiscal year inside the
// caller's transaction, creating it when absent (implicit open on first
// ingestion). Returns SessionClosed when the year is already settled.
func findOrCreateSessionTx(ctx context.Context, tx *gorm.DB, fiscalYear int) (*ReconciliationSession, error) {
	var session ReconciliationSession
	err := tx.Where("fiscal_year = ?", fiscalYear).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session = ReconciliationSession{
			FiscalYear: fiscalYear,
			Status:     SessionStatusOpen,
			OpenedAt:   time.Now().UTC(),
			OpenedBy:   "auto",
		}
		if err := tx.Create(&session).Error; err != nil {
			return nil, err
		}
		return &session, nil
	}
	if err != nil {
		return nil, err
	}
	if err := session.ensureItemsMutable("add"); err != nil {
		return nil, err
	}
	return &session, nil
}

func ListReconciliationSessions(ctx context.Context) ([]*SessionSummary, error) {
	db := config.GetDB()
	var sessions []*ReconciliationSession
	if err := db.WithContext(ctx).Order("fiscal_year DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}

	summaries := make([]*SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		var count int64
		if err := db.WithContext(ctx).Model(&CommingledItem{}).
			Where("session_id = ?", s.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		summaries = append(summaries, &SessionSummary{ReconciliationSession: *s, TotalItems: int(count)})
	}
	return summaries, nil
}

// GetSessionDetail recomputes tallies from live item state on every read, so
// the projected balance of an open session is visible before settling. The
// stored settlement snapshot is returned on the session itself once settled.
func GetSessionDetail(ctx context.Context, fiscalYear int) (*SessionDetail, error) {
	db := config.GetDB()

	var session ReconciliationSession
	err := db.WithContext(ctx).Where("fiscal_year = ?", fiscalYear).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	var items []*CommingledItem
	if err := db.WithContext(ctx).
		Where("session_id = ?", session.ID).
		Order("status ASC").Order("date DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}

	tallies := ComputeTallies(items)
	progress := SessionProgress{
		Total:    tallies.ItemCount,
		Pending:  tallies.PendingCount,
		Resolved: tallies.ResolvedCount,
		Skipped:  tallies.SkippedCount,
	}
	if progress.Total > 0 {
		progress.PercentComplete = int(float64(progress.Resolved)/float64(progress.Total)*100 + 0.5)
	}

	return &SessionDetail{
		Session:  &session,
		Progress: progress,
		Tallies:  tallies,
		Items:    items,
	}, nil
}
