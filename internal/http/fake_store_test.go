package http

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joandeitos/fiap-techchallenge/internal/model"
	"github.com/joandeitos/fiap-techchallenge/internal/repository"
)

// fakeStore is an in-memory Store with the same error contract as the pgx
// repository, so handler tests run without a database.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]model.User
	posts map[string]model.Post
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]model.User),
		posts: make(map[string]model.Post),
	}
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(email)
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUser(_ context.Context, userID string, update repository.UserUpdate) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	if update.Email != nil {
		email := strings.ToLower(*update.Email)
		for id, existing := range f.users {
			if id != userID && existing.Email == email {
				return model.User{}, repository.ErrDuplicateEmail
			}
		}
		user.Email = email
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.ClearDiscipline {
		user.Discipline = nil
	} else if update.Discipline != nil {
		user.Discipline = update.Discipline
	}
	if update.IsActive != nil {
		user.IsActive = *update.IsActive
	}
	user.UpdatedAt = time.Now().UTC()
	f.users[userID] = user
	return user, nil
}

func (f *fakeStore) UpdateLastLogin(_ context.Context, userID string, loginAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLoginAt = &loginAt
	f.users[userID] = user
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return false, nil
	}
	delete(f.users, userID)
	return true, nil
}

func (f *fakeStore) ListUsers(_ context.Context, limit int) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]model.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (f *fakeStore) CreatePost(_ context.Context, post model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[post.ID] = post
	return nil
}

func (f *fakeStore) GetPost(_ context.Context, postID string) (model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok {
		return model.Post{}, repository.ErrNotFound
	}
	return f.withAuthor(post), nil
}

func (f *fakeStore) ListPosts(_ context.Context) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collect(func(model.Post) bool { return true }), nil
}

func (f *fakeStore) SearchPosts(_ context.Context, query string) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.ToLower(query)
	return f.collect(func(post model.Post) bool {
		return strings.Contains(strings.ToLower(post.Title), needle) ||
			strings.Contains(strings.ToLower(post.Content), needle)
	}), nil
}

func (f *fakeStore) UpdatePost(_ context.Context, postID, title, content string, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok {
		return repository.ErrNotFound
	}
	post.Title = title
	post.Content = content
	post.UpdatedAt = updatedAt
	f.posts[postID] = post
	return nil
}

func (f *fakeStore) DeletePost(_ context.Context, postID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[postID]; !ok {
		return false, nil
	}
	delete(f.posts, postID)
	return true, nil
}

func (f *fakeStore) collect(match func(model.Post) bool) []model.Post {
	posts := make([]model.Post, 0, len(f.posts))
	for _, post := range f.posts {
		if match(post) {
			posts = append(posts, f.withAuthor(post))
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts
}

func (f *fakeStore) withAuthor(post model.Post) model.Post {
	if author, ok := f.users[post.AuthorID]; ok {
		post.Author = &model.Author{ID: author.ID, Name: author.Name, Email: author.Email}
	} else {
		post.Author = nil
	}
	return post
}
