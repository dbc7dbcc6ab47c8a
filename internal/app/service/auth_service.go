package service

import (
	"context"
	"errors"

	"clusterizer/internal/common"
	"clusterizer/internal/common/security"
	"clusterizer/internal/domain/model"
	"clusterizer/internal/domain/repository"
)

const (
	minNameLen = 3
	maxNameLen = 32
)

type AuthService struct {
	userRepo repository.UserRepository
	keys     *security.APIKeys
}

func NewAuthService(userRepo repository.UserRepository, keys *security.APIKeys) *AuthService {
	return &AuthService{userRepo: userRepo, keys: keys}
}

// Register creates a user and returns its API key.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.RegisterResponse, error) {
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}

	id, err := s.userRepo.Create(ctx, req.Name)
	if err != nil {
		if errors.Is(err, common.ErrUserExists) {
			return nil, err
		}
		return nil, common.Errorf("failed to create user: %w", err)
	}
	return &model.RegisterResponse{APIKey: s.keys.Encode(id)}, nil
}

// Authenticate resolves an API key to an enabled user.
func (s *AuthService) Authenticate(ctx context.Context, apiKey string) (*model.User, error) {
	userID, err := s.keys.Decode(apiKey)
	if err != nil {
		return nil, common.ErrBadAPIKey
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrBadAPIKey
		}
		return nil, common.Errorf("failed to load user %d: %w", userID, err)
	}
	if user.Disabled() {
		return nil, common.ErrUserDisabled
	}
	return user, nil
}

// ValidateName checks a user name against the length bounds (in bytes) and
// the [A-Za-z0-9_] alphabet, in that order.
func ValidateName(name string) error {
	if len(name) < minNameLen {
		return common.ErrNameTooShort
	}
	if len(name) > maxNameLen {
		return common.ErrNameTooLong
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return common.ErrNameInvalidCharacter
		}
	}
	return nil
}
