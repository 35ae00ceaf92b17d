package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/regcheck/backend/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrUserInactive       = errors.New("user account is disabled")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrInvalidRole        = errors.New("invalid role")
)

// UserStore persists user accounts
type UserStore interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	SaveUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context, search string, offset, limit int) ([]models.User, int64, error)
}

type UserService struct {
	store UserStore
	cost  int
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store, cost: bcrypt.DefaultCost}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.UserRole
}

func ParseRole(s string) (models.UserRole, error) {
	switch models.UserRole(strings.ToUpper(s)) {
	case models.RoleAdmin:
		return models.RoleAdmin, nil
	case models.RoleAnalyst:
		return models.RoleAnalyst, nil
	case models.RoleViewer:
		return models.RoleViewer, nil
	}
	return "", ErrInvalidRole
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := in.Role
	if role == "" {
		role = models.RoleAnalyst
	}
	user := &models.User{
		Email:     email,
		Password:  string(hashed),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      role,
		IsActive:  true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate checks the password and records the login time
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}

type ProfileUpdate struct {
	FirstName string
	LastName  string
	Email     string
}

// UpdateProfile changes the non-empty fields
func (s *UserService) UpdateProfile(ctx context.Context, id uint, in ProfileUpdate) (*models.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.FirstName != "" {
		user.FirstName = in.FirstName
	}
	if in.LastName != "" {
		user.LastName = in.LastName
	}
	if email := strings.ToLower(strings.TrimSpace(in.Email)); email != "" && email != user.Email {
		if other, err := s.store.GetUserByEmail(ctx, email); err == nil && other.ID != user.ID {
			return nil, ErrUserExists
		}
		user.Email = email
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (s *UserService) ChangePassword(ctx context.Context, id uint, current, next string) error {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)); err != nil {
		return ErrWrongPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.Password = string(hashed)
	return s.store.SaveUser(ctx, user)
}

func (s *UserService) List(ctx context.Context, search string, page, limit int) ([]models.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = 10
	}
	users, total, err := s.store.ListUsers(ctx, search, (page-1)*limit, limit)
	if users == nil && err == nil {
		users = []models.User{}
	}
	return users, total, err
}
