package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/cryptox"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/repomanager"
)

// UserService manages accounts. Credentials are opaque: issuing and checking
// them belongs to the identity layer.
type UserService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	defaultLimit int64
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, defaultLimit int64) *UserService {
	return &UserService{db: db, repomanager: m, defaultLimit: defaultLimit}
}

// Create adds a user. A non-positive limit means the configured default.
func (s *UserService) Create(ctx context.Context, email string, credential []byte, limit int64) (*models.User, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: invalid email %q", common.ErrorValidation, email)
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		ID:           cryptox.NewID(),
		Email:        email,
		Credential:   credential,
		StorageLimit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrUserNotFound
	}
	return u, err
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrUserNotFound
	}
	return u, err
}
