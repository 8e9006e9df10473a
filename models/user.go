package models

import (
	"context"
	"errors"
	"time"

	"github.com/elstonfarm/farmbooks_backend/config"
	"github.com/elstonfarm/farmbooks_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:100;not null" json:"username"`
	PasswordHash string    `gorm:"size:100;not null" json:"-"`
	IsAdmin      *bool     `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

var ErrorInvalidCredentials = errors.New("invalid username or password")

func Login(ctx context.Context, input *LoginInput) (string, *User, error) {
	db := config.GetDB()

	var user User
	err := db.WithContext(ctx).Where("username = ?", input.Username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrorInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if err := utils.ComparePassword(user.PasswordHash, input.Password); err != nil {
		return "", nil, ErrorInvalidCredentials
	}

	token, err := utils.JwtGenerate(user.ID, user.Username, utils.DereferencePtr(user.IsAdmin))
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}
