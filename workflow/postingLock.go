package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireSettlementLock serializes settlement per fiscal year across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will run the settlement transaction.
func AcquireSettlementLock(tx *gorm.DB, fiscalYear int) error {
	lockName := fmt.Sprintf("settlement:%d", fiscalYear)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire settlement lock for fiscal_year=%d", fiscalYear)
	}
	return nil
}

func ReleaseSettlementLock(tx *gorm.DB, fiscalYear int) {
	lockName := fmt.Sprintf("settlement:%d", fiscalYear)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
