package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/joandeitos/fiap-techchallenge/internal/auth"
	"github.com/joandeitos/fiap-techchallenge/internal/config"
	"github.com/joandeitos/fiap-techchallenge/internal/crypto"
	"github.com/joandeitos/fiap-techchallenge/internal/model"
	"github.com/joandeitos/fiap-techchallenge/internal/repository"
)

const disciplinePlaceholder = "Not Defined"

// Store is the persistence surface the HTTP layer depends on. It is satisfied
// by *repository.Store.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	CreateUser(ctx context.Context, user model.User) error
	UpdateUser(ctx context.Context, userID string, update repository.UserUpdate) (model.User, error)
	UpdateLastLogin(ctx context.Context, userID string, loginAt time.Time) error
	DeleteUser(ctx context.Context, userID string) (bool, error)
	ListUsers(ctx context.Context, limit int) ([]model.User, error)

	CreatePost(ctx context.Context, post model.Post) error
	GetPost(ctx context.Context, postID string) (model.Post, error)
	ListPosts(ctx context.Context) ([]model.Post, error)
	SearchPosts(ctx context.Context, query string) ([]model.Post, error)
	UpdatePost(ctx context.Context, postID, title, content string, updatedAt time.Time) error
	DeletePost(ctx context.Context, postID string) (bool, error)
}

type Server struct {
	cfg   config.Config
	store Store
	cache *redis.Client
}

// NewServer wires the handler set. cache may be nil, in which case the post
// list is served straight from the store on every request.
func NewServer(cfg config.Config, store Store, cache *redis.Client) *Server {
	return &Server{cfg: cfg, store: store, cache: cache}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)
		r.With(s.authMiddleware).Put("/auth/profile", s.handleUpdateProfile)
		r.With(s.authMiddleware).Put("/auth/change-password", s.handleChangePassword)

		r.Route("/users", func(r chi.Router) {
			r.Use(s.authMiddleware, s.requireRole(model.RoleAdmin))
			r.Get("/", s.handleListUsers)
			r.Get("/{userID}", s.handleGetUser)
			r.Put("/{userID}", s.handleUpdateUser)
			r.Delete("/{userID}", s.handleDeleteUser)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", s.handleListPosts)
			r.Get("/search", s.handleSearchPosts)
			r.Get("/{postID}", s.handleGetPost)
			r.With(s.authMiddleware).Post("/", s.handleCreatePost)
			r.With(s.authMiddleware).Put("/{postID}", s.handleUpdatePost)
			r.With(s.authMiddleware).Delete("/{postID}", s.handleDeletePost)
		})
	})

	return r
}

type userPayload struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Discipline  *string    `json:"discipline,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

type authorPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type postPayload struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Author    *authorPayload `json:"author,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func mapUserPayload(user model.User) userPayload {
	return userPayload{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		Discipline:  user.Discipline,
		LastLoginAt: user.LastLoginAt,
	}
}

func mapPostPayload(post model.Post) postPayload {
	payload := postPayload{
		ID:        post.ID,
		Title:     post.Title,
		Content:   post.Content,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
	if post.Author != nil {
		payload.Author = &authorPayload{
			ID:    post.Author.ID,
			Name:  post.Author.Name,
			Email: post.Author.Email,
		}
	}
	return payload
}

func (s *Server) issueToken(user model.User) (string, error) {
	return auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, auth.Claims{
		UserID:     user.ID,
		Name:       user.Name,
		Email:      user.Email,
		Role:       user.Role,
		Discipline: user.Discipline,
	})
}

type registerRequest struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	Role       string  `json:"role"`
	Discipline *string `json:"discipline,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if len(req.Name) < 3 {
		writeError(w, http.StatusBadRequest, "name must be at least 3 characters")
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	role, discipline, err := resolveRoleDiscipline(req.Role, req.Discipline, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetUserByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusBadRequest, "email already in use")
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		writeInternalError(w, err)
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		Discipline:   discipline,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		// A concurrent registration can still win the unique-email race.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "email already in use")
			return
		}
		writeInternalError(w, err)
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: mapUserPayload(user)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeInternalError(w, err)
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusUnauthorized, "inactive account")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	now := time.Now().UTC()
	if err := s.store.UpdateLastLogin(r.Context(), user.ID, now); err != nil {
		writeInternalError(w, err)
		return
	}
	user.LastLoginAt = &now

	token, err := s.issueToken(user)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: mapUserPayload(user)})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "must authenticate first")
		return
	}
	writeJSON(w, http.StatusOK, mapUserPayload(*user))
}

type updateProfileRequest struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Role       *string `json:"role,omitempty"`
	Discipline *string `json:"discipline,omitempty"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "must authenticate first")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update, err := s.buildUserUpdate(r.Context(), *user, req.Name, req.Email, req.Role, req.Discipline)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	updated, err := s.store.UpdateUser(r.Context(), user.ID, update)
	if err != nil {
		writeUpdateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapUserPayload(updated))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "must authenticate first")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.CurrentPassword); err != nil {
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if len(req.NewPassword) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if _, err := s.store.UpdateUser(r.Context(), user.ID, repository.UserUpdate{PasswordHash: &hash}); err != nil {
		writeUpdateError(w, err)
		return
	}

	// Outstanding tokens stay valid until they expire; there is no
	// server-side revocation list.
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	users, err := s.store.ListUsers(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	payloads := make([]userPayload, 0, len(users))
	for _, user := range users {
		payloads = append(payloads, mapUserPayload(user))
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUserPayload(user))
}

type updateUserRequest struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Password   *string `json:"password,omitempty"`
	Role       *string `json:"role,omitempty"`
	Discipline *string `json:"discipline,omitempty"`
	IsActive   *bool   `json:"isActive,omitempty"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	target, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeInternalError(w, err)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update, err := s.buildUserUpdate(r.Context(), target, req.Name, req.Email, req.Role, req.Discipline)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
			return
		}
		hash, err := crypto.HashPassword(*req.Password)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		update.PasswordHash = &hash
	}
	update.IsActive = req.IsActive

	updated, err := s.store.UpdateUser(r.Context(), userID, update)
	if err != nil {
		writeUpdateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUserPayload(updated))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	deleted, err := s.store.DeleteUser(r.Context(), userID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	if data, ok := s.cachedPosts(r.Context()); ok {
		writeRawJSON(w, http.StatusOK, data)
		return
	}

	posts, err := s.store.ListPosts(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	payloads := make([]postPayload, 0, len(posts))
	for _, post := range posts {
		payloads = append(payloads, mapPostPayload(post))
	}

	data, err := json.Marshal(payloads)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	s.storePostsCache(r.Context(), data)
	writeRawJSON(w, http.StatusOK, data)
}

func (s *Server) handleSearchPosts(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "search query required")
		return
	}

	posts, err := s.store.SearchPosts(r.Context(), query)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	payloads := make([]postPayload, 0, len(posts))
	for _, post := range posts {
		payloads = append(payloads, mapPostPayload(post))
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	post, err := s.store.GetPost(r.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPostPayload(post))
}

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "must authenticate first")
		return
	}

	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	now := time.Now().UTC()
	post := model.Post{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Content:   req.Content,
		AuthorID:  user.ID,
		Author:    &model.Author{ID: user.ID, Name: user.Name, Email: user.Email},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePost(r.Context(), post); err != nil {
		writeInternalError(w, err)
		return
	}
	s.invalidatePostsCache(r.Context())

	writeJSON(w, http.StatusCreated, mapPostPayload(post))
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "must authenticate first")
		return
	}
	postID := chi.URLParam(r, "postID")

	post, err := s.store.GetPost(r.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	if !canEditPost(*user, post) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	now := time.Now().UTC()
	if err := s.store.UpdatePost(r.Context(), postID, req.Title, req.Content, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	s.invalidatePostsCache(r.Context())

	post.Title = req.Title
	post.Content = req.Content
	post.UpdatedAt = now
	writeJSON(w, http.StatusOK, mapPostPayload(post))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "must authenticate first")
		return
	}
	postID := chi.URLParam(r, "postID")

	post, err := s.store.GetPost(r.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	if !canEditPost(*user, post) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	deleted, err := s.store.DeletePost(r.Context(), postID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	s.invalidatePostsCache(r.Context())

	writeJSON(w, http.StatusOK, map[string]string{"message": "post deleted"})
}

// canEditPost is the ownership check for posts: the author may edit their own
// post, admins may edit any.
func canEditPost(user model.User, post model.Post) bool {
	return post.AuthorID == user.ID || user.Role == model.RoleAdmin
}

var (
	errInvalidRole     = errors.New("invalid role")
	errNameTooShort    = errors.New("name must be at least 3 characters")
	errInvalidEmail    = errors.New("invalid email")
	errEmailInUse      = errors.New("email already in use")
	errEmptyDiscipline = errors.New("discipline cannot be empty")
)

// resolveRoleDiscipline applies the role/discipline invariant in one place:
// instructors always end up with a non-empty discipline (falling back to the
// current value, then to the placeholder), every other role has none. Callers
// that allow an absent role must decide so before calling; an empty role is
// rejected here.
func resolveRoleDiscipline(role string, discipline, current *string) (string, *string, error) {
	role = strings.TrimSpace(strings.ToLower(role))
	if !model.ValidRole(role) {
		return "", nil, errInvalidRole
	}
	if role != model.RoleInstructor {
		return role, nil, nil
	}
	if discipline != nil {
		value := strings.TrimSpace(*discipline)
		if value == "" {
			return "", nil, errEmptyDiscipline
		}
		return role, &value, nil
	}
	if current != nil && strings.TrimSpace(*current) != "" {
		return role, current, nil
	}
	placeholder := disciplinePlaceholder
	return role, &placeholder, nil
}

// buildUserUpdate assembles a partial update for both the self-service profile
// path and the admin user path, re-checking email uniqueness and the
// role/discipline invariant against the target account.
func (s *Server) buildUserUpdate(ctx context.Context, target model.User, name, email, role, discipline *string) (repository.UserUpdate, error) {
	update := repository.UserUpdate{}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if len(trimmed) < 3 {
			return update, errNameTooShort
		}
		update.Name = &trimmed
	}

	if email != nil {
		normalized := strings.TrimSpace(strings.ToLower(*email))
		if normalized != "" && normalized != target.Email {
			if !validEmail(normalized) {
				return update, errInvalidEmail
			}
			if _, err := s.store.GetUserByEmail(ctx, normalized); err == nil {
				return update, errEmailInUse
			} else if !errors.Is(err, repository.ErrNotFound) {
				return update, err
			}
			update.Email = &normalized
		}
	}

	// An empty role field means the client did not pick one; leave the
	// account's role and discipline alone.
	if role != nil && strings.TrimSpace(*role) == "" {
		role = nil
	}

	effectiveRole := target.Role
	if role != nil {
		effectiveRole = *role
	}
	if role != nil || (discipline != nil && effectiveRole == model.RoleInstructor) {
		resolvedRole, resolvedDiscipline, err := resolveRoleDiscipline(effectiveRole, discipline, target.Discipline)
		if err != nil {
			return update, err
		}
		update.Role = &resolvedRole
		if resolvedDiscipline != nil {
			update.Discipline = resolvedDiscipline
		} else {
			update.ClearDiscipline = true
		}
	}

	return update, nil
}

func writeRequestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errInvalidRole),
		errors.Is(err, errNameTooShort),
		errors.Is(err, errInvalidEmail),
		errors.Is(err, errEmailInUse),
		errors.Is(err, errEmptyDiscipline):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeInternalError(w, err)
	}
}

func writeUpdateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, "email already in use")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		writeInternalError(w, err)
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "no token provided")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// One store lookup per request: a deleted or deactivated account is
		// rejected even while its token is still unexpired.
		user, err := s.store.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "account not found")
				return
			}
			writeInternalError(w, err)
			return
		}
		if !user.IsActive {
			writeError(w, http.StatusUnauthorized, "inactive account")
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "must authenticate first")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "access denied")
		})
	}
}

type userKey struct{}

func userFromContext(ctx context.Context) *model.User {
	value := ctx.Value(userKey{})
	user, _ := value.(*model.User)
	return user
}

const postsCacheKey = "posts:all"

func (s *Server) cachedPosts(ctx context.Context) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, postsCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *Server) storePostsCache(ctx context.Context, data []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, postsCacheKey, data, s.cfg.PostCacheTTL).Err(); err != nil {
		log.Printf("post cache set failed: %v", err)
	}
}

func (s *Server) invalidatePostsCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, postsCacheKey).Err(); err != nil {
		log.Printf("post cache invalidation failed: %v", err)
	}
}

func validEmail(email string) bool {
	parsed, err := mail.ParseAddress(email)
	return err == nil && parsed.Address == email
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// decodeJSON tolerates unknown body fields so clients can send extras
// (confirm-password and the like) without being rejected.
func decodeJSON(r *http.Request, out interface{}) error {
	return json.NewDecoder(r.Body).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Printf("internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
