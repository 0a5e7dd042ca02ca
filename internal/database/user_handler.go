package database

import (
	"context"
	"errors"

	"ipgate/internal/domain"
)

func GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	if DB == nil {
		return domain.User{}, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var user domain.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func CountUsers(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	if err := db.Model(&domain.User{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func CreateUser(ctx context.Context, user *domain.User) error {
	if DB == nil {
		return errors.New("database not initialised")
	}
	if user == nil {
		return errors.New("nil user")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return db.Create(user).Error
}
