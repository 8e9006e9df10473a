package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/elstonfarm/farmbooks_backend/config"
	"github.com/elstonfarm/farmbooks_backend/utils"
	"gorm.io/gorm"
)

// PurchasingAccount catalogs which purchasing accounts belong to the farm vs.
// an individual (shared marketplace logins, payment cards). Pure reference
// data: no lifecycle beyond create/update/deactivate, never deleted.
type PurchasingAccount struct {
	ID       int             `gorm:"primary_key" json:"id"`
	Name     string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Slug     string          `gorm:"uniqueIndex;size:100;not null" json:"slug" binding:"required"`
	Owner    string          `gorm:"index;size:100;not null" json:"owner" binding:"required"`
	Platform AccountPlatform `gorm:"size:30;not null" json:"platform" binding:"required"`
	Email    string          `gorm:"size:100" json:"email,omitempty"`
	Phone    string          `gorm:"size:50" json:"phone,omitempty"`
	Last4    string          `gorm:"size:4" json:"last4,omitempty"`
	Notes    string          `gorm:"type:text" json:"notes,omitempty"`
	IsActive *bool           `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPurchasingAccount struct {
	Name     string          `json:"name" binding:"required"`
	Slug     string          `json:"slug" binding:"required"`
	Owner    string          `json:"owner" binding:"required"`
	Platform AccountPlatform `json:"platform" binding:"required"`
	Email    string          `json:"email"`
	Phone    string          `json:"phone"`
	Last4    string          `json:"last4"`
	Notes    string          `json:"notes"`
}

type AccountRegistry struct {
	Accounts []*PurchasingAccount            `json:"accounts"`
	Grouped  map[string][]*PurchasingAccount `json:"grouped"`
}

const accountsRedisKey = "purchasingAccounts:active"

func (input *NewPurchasingAccount) validate() error {
	// Owner is either the organization ("farm") or an individual owner id
	// ("personal_fred").
	if input.Owner != "farm" && !strings.HasPrefix(input.Owner, "personal_") {
		return utils.NewEngineError(utils.ErrorCodeValidation,
			`owner must be "farm" or "personal_<name>"`)
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewEngineError(utils.ErrorCodeValidation, "invalid email")
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.NewEngineError(utils.ErrorCodeValidation, "invalid phone number")
		}
	}
	return nil
}

// UpsertPurchasingAccount registers or updates an account, idempotent by slug.
func UpsertPurchasingAccount(ctx context.Context, input *NewPurchasingAccount) (*PurchasingAccount, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()

	var account PurchasingAccount
	err := db.WithContext(ctx).Where("slug = ?", input.Slug).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = PurchasingAccount{
			Name:     input.Name,
			Slug:     input.Slug,
			Owner:    input.Owner,
			Platform: input.Platform,
			Email:    input.Email,
			Phone:    input.Phone,
			Last4:    input.Last4,
			Notes:    input.Notes,
			IsActive: utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&account).Error; err != nil {
			return nil, err
		}
		invalidateAccountsCache()
		return &account, nil
	}
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Model(&account).Updates(map[string]interface{}{
		"name":     input.Name,
		"owner":    input.Owner,
		"platform": input.Platform,
		"email":    input.Email,
		"phone":    input.Phone,
		"last4":    input.Last4,
		"notes":    input.Notes,
	}).Error
	if err != nil {
		return nil, err
	}
	invalidateAccountsCache()
	return &account, nil
}

// ListPurchasingAccounts returns active accounts grouped by owning party.
// Reference data, so the flat list is cached in redis until the next upsert.
func ListPurchasingAccounts(ctx context.Context) (*AccountRegistry, error) {
	var accounts []*PurchasingAccount

	exists, err := config.GetRedisObject(accountsRedisKey, &accounts)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		err := db.WithContext(ctx).
			Where("is_active = ?", true).
			Order("owner ASC").Order("platform ASC").
			Find(&accounts).Error
		if err != nil {
			return nil, err
		}
		if err := config.SetRedisObject(accountsRedisKey, &accounts, 0); err != nil {
			return nil, err
		}
	}

	grouped := make(map[string][]*PurchasingAccount)
	for _, acc := range accounts {
		grouped[acc.Owner] = append(grouped[acc.Owner], acc)
	}
	return &AccountRegistry{Accounts: accounts, Grouped: grouped}, nil
}

// DeactivatePurchasingAccount soft-deactivates by slug. Accounts are never
// deleted; items keep referring to them for audit.
func DeactivatePurchasingAccount(ctx context.Context, slug string) (*PurchasingAccount, error) {
	db := config.GetDB()

	var account PurchasingAccount
	err := db.WithContext(ctx).Where("slug = ?", slug).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).Model(&account).Update("is_active", false).Error; err != nil {
		return nil, err
	}
	invalidateAccountsCache()
	return &account, nil
}

func invalidateAccountsCache() {
	if err := config.DeleteRedisKey(accountsRedisKey); err != nil {
		config.LogError(config.GetLogger(), "purchasingAccount.go", "invalidateAccountsCache", "DeleteRedisKey", accountsRedisKey, err)
	}
}
