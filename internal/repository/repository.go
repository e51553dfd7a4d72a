package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joandeitos/fiap-techchallenge/internal/model"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already in use")
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, name, email, password_hash, role, discipline, is_active, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Discipline,
		&user.IsActive,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, translateErr(err)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, strings.ToLower(email))
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, userID)
	return scanUser(row)
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, discipline, is_active, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, user.ID, user.Name, strings.ToLower(user.Email), user.PasswordHash, user.Role, user.Discipline, user.IsActive, user.LastLoginAt, user.CreatedAt, user.UpdatedAt)
	return translateErr(err)
}

// UserUpdate carries the fields of a partial user update. Nil pointers leave
// the column untouched; ClearDiscipline wins over Discipline.
type UserUpdate struct {
	Name            *string
	Email           *string
	PasswordHash    *string
	Role            *string
	Discipline      *string
	ClearDiscipline bool
	IsActive        *bool
}

func (s *Store) UpdateUser(ctx context.Context, userID string, update UserUpdate) (model.User, error) {
	sets := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Email != nil {
		add("email", strings.ToLower(*update.Email))
	}
	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.Role != nil {
		add("role", *update.Role)
	}
	if update.ClearDiscipline {
		sets = append(sets, "discipline = NULL")
	} else if update.Discipline != nil {
		add("discipline", *update.Discipline)
	}
	if update.IsActive != nil {
		add("is_active", *update.IsActive)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, userID)
	query := fmt.Sprintf(`
		UPDATE users SET %s
		WHERE id = $%d
		RETURNING `+userColumns, strings.Join(sets, ", "), len(args))

	return scanUser(s.pool.QueryRow(ctx, query, args...))
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string, loginAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET last_login_at = $1
		WHERE id = $2
	`, loginAt, userID)
	return translateErr(err)
}

func (s *Store) DeleteUser(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return false, translateErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, translateErr(err)
}

const postColumns = `p.id, p.title, p.content, p.author_id, p.created_at, p.updated_at, u.id, u.name, u.email`

func scanPost(row pgx.Row) (model.Post, error) {
	var post model.Post
	var authorID, authorName, authorEmail *string
	err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Content,
		&post.AuthorID,
		&post.CreatedAt,
		&post.UpdatedAt,
		&authorID,
		&authorName,
		&authorEmail,
	)
	if err != nil {
		return model.Post{}, translateErr(err)
	}
	// LEFT JOIN: the author account may have been deleted since.
	if authorID != nil {
		post.Author = &model.Author{ID: *authorID, Name: *authorName, Email: *authorEmail}
	}
	return post, nil
}

func (s *Store) CreatePost(ctx context.Context, post model.Post) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO posts (id, title, content, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, post.ID, post.Title, post.Content, post.AuthorID, post.CreatedAt, post.UpdatedAt)
	return translateErr(err)
}

func (s *Store) GetPost(ctx context.Context, postID string) (model.Post, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		LEFT JOIN users u ON u.id = p.author_id
		WHERE p.id = $1
	`, postID)
	return scanPost(row)
}

func (s *Store) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		LEFT JOIN users u ON u.id = p.author_id
		ORDER BY p.created_at DESC
	`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

func (s *Store) SearchPosts(ctx context.Context, query string) ([]model.Post, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		LEFT JOIN users u ON u.id = p.author_id
		WHERE p.title ILIKE $1 OR p.content ILIKE $1
		ORDER BY p.created_at DESC
	`, pattern)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

func (s *Store) UpdatePost(ctx context.Context, postID, title, content string, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts
		SET title = $1, content = $2, updated_at = $3
		WHERE id = $4
	`, title, content, updatedAt, postID)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePost(ctx context.Context, postID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID)
	if err != nil {
		return false, translateErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	return count, translateErr(err)
}

func collectPosts(rows pgx.Rows) ([]model.Post, error) {
	posts := make([]model.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return err
}
