package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/joandeitos/fiap-techchallenge/internal/crypto"
	"github.com/joandeitos/fiap-techchallenge/internal/model"
)

const (
	defaultAdminName     = "Administrator"
	defaultAdminEmail    = "admin@system.com"
	defaultAdminPassword = "123456"

	welcomeTitle   = "Welcome post"
	welcomeContent = `<h2>Welcome to the school blog platform!</h2>
<p>This is a space for sharing knowledge and classroom experience. Here you can:</p>
<ul>
  <li>Share your classroom experience</li>
  <li>Publish articles about teaching methodology</li>
  <li>Discuss pedagogical practice</li>
</ul>
<p>To get started, log in with your credentials or create a new account.</p>`
)

type Store interface {
	CountUsers(ctx context.Context) (int64, error)
	CreateUser(ctx context.Context, user model.User) error
	CountPosts(ctx context.Context) (int64, error)
	CreatePost(ctx context.Context, post model.Post) error
}

// Initialize seeds a default admin account and a welcome post into an empty
// store so a fresh deployment is usable immediately.
func Initialize(ctx context.Context, store Store) error {
	userCount, err := store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if userCount > 0 {
		return nil
	}

	log.Printf("no users found, creating default admin account")

	hash, err := crypto.HashPassword(defaultAdminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := model.User{
		ID:           uuid.NewString(),
		Name:         defaultAdminName,
		Email:        defaultAdminEmail,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(ctx, admin); err != nil {
		return err
	}

	postCount, err := store.CountPosts(ctx)
	if err != nil {
		return err
	}
	if postCount > 0 {
		return nil
	}

	log.Printf("no posts found, creating welcome post")

	return store.CreatePost(ctx, model.Post{
		ID:        uuid.NewString(),
		Title:     welcomeTitle,
		Content:   welcomeContent,
		AuthorID:  admin.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}
