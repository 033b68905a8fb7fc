package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// UserInput is the writable profile of a directory user
type UserInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	LarkOpenID string `json:"lark_open_id"`
}

// DirectoryService maintains the company user directory used to resolve
// notification audiences
type DirectoryService interface {
	Upsert(ctx context.Context, actor entity.Actor, id string, input UserInput) (*entity.User, error)
	Get(ctx context.Context, actor entity.Actor, id string) (*entity.User, error)
}

type directoryServiceImpl struct {
	users  port.UserRepository
	logger Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(users port.UserRepository, logger Logger) DirectoryService {
	return &directoryServiceImpl{
		users:  users,
		logger: logger,
	}
}

var validRoles = map[string]bool{
	entity.RoleEmployee: true,
	entity.RoleManager:  true,
	entity.RoleAdmin:    true,
}

// Upsert creates or replaces a user of the admin's company
func (s *directoryServiceImpl) Upsert(ctx context.Context, actor entity.Actor, id string, input UserInput) (*entity.User, error) {
	if !actor.IsAdmin() {
		return nil, approval.ErrForbidden
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, approval.NewValidationError("id", "must not be empty")
	}

	user := &entity.User{
		ID:         id,
		CompanyID:  actor.CompanyID,
		Name:       utils.SanitizeString(input.Name),
		Email:      strings.TrimSpace(input.Email),
		Role:       strings.ToLower(strings.TrimSpace(input.Role)),
		LarkOpenID: strings.TrimSpace(input.LarkOpenID),
	}
	if user.Name == "" {
		return nil, approval.NewValidationError("name", "must not be empty")
	}
	if !validRoles[user.Role] {
		return nil, approval.NewValidationError("role", fmt.Sprintf("unknown role %q", input.Role))
	}
	if err := utils.ValidateEmail(user.Email); err != nil {
		return nil, approval.NewValidationError("email", err.Error())
	}

	// ids are global; a user of another company stays invisible
	existing, err := s.users.GetByID(ctx, id)
	switch {
	case err == nil:
		if existing.CompanyID != actor.CompanyID {
			return nil, approval.ErrNotFound
		}
		user.CreatedAt = existing.CreatedAt
	case !errors.Is(err, approval.ErrNotFound):
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Error("Failed to save user", "error", err, "user_id", id)
		return nil, fmt.Errorf("save user: %w", err)
	}

	s.logger.Info("Directory user saved", "user_id", id, "company_id", actor.CompanyID, "role", user.Role)
	return user, nil
}

// Get returns a user of the actor's company
func (s *directoryServiceImpl) Get(ctx context.Context, actor entity.Actor, id string) (*entity.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.CompanyID != actor.CompanyID {
		return nil, approval.ErrNotFound
	}
	return user, nil
}
