package services

import (
	"context"
	"errors"
	"fmt"

	"matchpool/internal/models"
	"matchpool/internal/repository"

	"gorm.io/gorm"
)

// UserService owns user lookup and wallet-based registration.
type UserService struct {
	repo *repository.Repository
}

func NewUserService(repo *repository.Repository) *UserService {
	return &UserService{repo: repo}
}

// ProcessWalletLogin returns the user for a verified wallet, registering one
// on first login.
func (s *UserService) ProcessWalletLogin(ctx context.Context, walletAddress string) (*models.User, error) {
	user, err := s.repo.GetUserByWallet(ctx, walletAddress)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}

	nickname := walletAddress
	if len(nickname) > 8 {
		nickname = nickname[:8]
	}
	user = &models.User{
		WalletAddress: walletAddress,
		Nickname:      nickname,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	return user, nil
}

// GetUserByID returns one user.
func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// ListTransactions returns a user's ledger history.
func (s *UserService) ListTransactions(ctx context.Context, userID uint, limit, offset int) ([]*models.LedgerTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactionsByUser(ctx, userID, limit, offset)
}
