// seed-admin creates or updates the console admin user and the purchasing
// account registry (which accounts are farm vs personal, so the scanner can
// flag cross-use).
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/elstonfarm/farmbooks_backend/config"
	"github.com/elstonfarm/farmbooks_backend/models"
	"github.com/elstonfarm/farmbooks_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "farmbooksAdmin"
	adminPassword = "F@rmbooksAdmin"
)

func seedAccounts(ctx context.Context) error {
	accounts := []*models.NewPurchasingAccount{
		{
			Name:     "Farm Amazon",
			Slug:     "farm-amazon",
			Owner:    "farm",
			Platform: models.PlatformAmazon,
			Notes:    "Primary Amazon account for farm supplies. Also used for personal orders occasionally.",
		},
		{
			Name:     "Personal Amazon (Fred)",
			Slug:     "personal-amazon-fred",
			Owner:    "personal_fred",
			Platform: models.PlatformAmazon,
			Notes:    "Fred's personal Amazon. Sometimes orders farm supplies here for faster delivery.",
		},
		{
			Name:     "Farm Chewy",
			Slug:     "farm-chewy",
			Owner:    "farm",
			Platform: models.PlatformChewy,
			Notes:    "Autoship for dog food, supplements. Occasionally has personal pet items.",
		},
		{
			Name:     "Personal Chewy",
			Slug:     "personal-chewy",
			Owner:    "personal_fred",
			Platform: models.PlatformChewy,
			Notes:    "Personal Chewy for home pets. Sometimes adds a farm order to hit free shipping.",
		},
		{
			Name:     "Farm Tractor Supply (TSC)",
			Slug:     "farm-tsc",
			Owner:    "farm",
			Platform: models.PlatformTractorSupply,
			Notes:    "Neighborhood Rewards account. 8-10 trips/month for specialty feeds, litter, barn supplies.",
		},
		{
			Name:     "Farm Debit/Credit Card",
			Slug:     "farm-card",
			Owner:    "farm",
			Platform: models.PlatformCard,
			Notes:    "Primary farm payment card. Used for most in-store and online purchases.",
		},
		{
			Name:     "RaiseRight Card",
			Slug:     "raiseright-card",
			Owner:    "farm",
			Platform: models.PlatformCard,
			Notes:    "RaiseRight (formerly SCRIP) gift cards. Earn rebates on purchases. Mixed farm/personal use.",
		},
		{
			Name:     "Personal Card (Fred)",
			Slug:     "personal-card-fred",
			Owner:    "personal_fred",
			Platform: models.PlatformCard,
			Notes:    "Fred's personal card. Emergency farm purchases end up here sometimes.",
		},
	}

	for _, acc := range accounts {
		if _, err := models.UpsertPurchasingAccount(ctx, acc); err != nil {
			return fmt.Errorf("seed account %q: %w", acc.Slug, err)
		}
	}
	fmt.Printf("Seeded %d purchasing accounts\n", len(accounts))
	return nil
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	if err := models.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	ctx = utils.SetUsernameInContext(ctx, adminUsername)
	ctx = utils.SetIsAdminInContext(ctx, true)

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u := models.User{
			Username:     adminUsername,
			PasswordHash: string(hashed),
			IsAdmin:      utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q\n", adminUsername)
	} else {
		err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).Updates(map[string]any{
			"password_hash": string(hashed),
			"is_admin":      utils.NewTrue(),
		}).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated admin user: username=%q\n", adminUsername)
	}

	if err := seedAccounts(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
