package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/user"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Service handles student accounts.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, in user.NewUser) (user.User, error) {
	u := user.User{
		Username: in.Username,
		Name:     in.Name,
		Grade:    in.Grade,
		Section:  in.Section,
	}
	if err := u.SetPassword(in.Password); err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return user.User{}, ErrUsernameTaken
		}
		return user.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Get looks a user up by id.
func (s *Service) Get(ctx context.Context, id int64) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return user.User{}, ErrUserNotFound
	}
	return u, err
}

// Login verifies the credentials. Unknown users and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, creds user.Credentials) (user.User, error) {
	u, err := s.store.GetUserByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return user.User{}, ErrInvalidCredentials
		}
		return user.User{}, err
	}
	if err := u.CheckPassword(creds.Password); err != nil {
		return user.User{}, ErrInvalidCredentials
	}
	return u, nil
}
