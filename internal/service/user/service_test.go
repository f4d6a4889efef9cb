package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/user"
	userservice "github.com/zhouzirui/smart-tutor/backend/internal/service/user"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

func TestRegisterAndLogin(t *testing.T) {
	svc := userservice.NewService(store.NewMemoryStore())
	ctx := context.Background()

	created, err := svc.Register(ctx, user.NewUser{Username: "rahul", Password: "secret1", Name: "Rahul"})
	if err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if string(created.PasswordHash) == "secret1" {
		t.Fatal("password stored in clear text")
	}

	if _, err := svc.Register(ctx, user.NewUser{Username: "rahul", Password: "other12", Name: "R"}); !errors.Is(err, userservice.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	got, err := svc.Login(ctx, user.Credentials{Username: "rahul", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("login returned user %d, want %d", got.ID, created.ID)
	}

	if _, err := svc.Login(ctx, user.Credentials{Username: "rahul", Password: "wrong"}); !errors.Is(err, userservice.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, user.Credentials{Username: "nobody", Password: "x"}); !errors.Is(err, userservice.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
