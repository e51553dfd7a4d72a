package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/joandeitos/fiap-techchallenge/internal/model"
)

func seedPost(t *testing.T, store *fakeStore, id, title, content, authorID string, createdAt time.Time) {
	t.Helper()
	store.posts[id] = model.Post{
		ID:        id,
		Title:     title,
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestListPostsPublic(t *testing.T) {
	app, store, _ := newTestServer(t)
	seedUser(t, store, "i1", "Ana Souza", "ana@x.edu", "segredo1", model.RoleInstructor, strPtr("Math"), true)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedPost(t, store, "p1", "Older post", "first content", "i1", base)
	seedPost(t, store, "p2", "Newer post", "second content", "i1", base.Add(time.Hour))
	seedPost(t, store, "p3", "Orphan post", "author is gone", "deleted-user", base.Add(2*time.Hour))

	resp := doReq(t, http.MethodGet, app.URL+"/api/posts", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 without a token, got %d", resp.StatusCode)
	}
	var posts []postPayload
	decodeBody(t, resp, &posts)
	if len(posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(posts))
	}
	if posts[0].ID != "p3" || posts[1].ID != "p2" || posts[2].ID != "p1" {
		t.Fatalf("expected newest-first ordering, got %s %s %s", posts[0].ID, posts[1].ID, posts[2].ID)
	}
	if posts[1].Author == nil || posts[1].Author.Name != "Ana Souza" {
		t.Fatalf("expected author summary on post")
	}
	if posts[0].Author != nil {
		t.Fatalf("expected no author summary for a deleted account")
	}
}

func TestGetPost(t *testing.T) {
	app, store, _ := newTestServer(t)
	seedUser(t, store, "i1", "Ana Souza", "ana@x.edu", "segredo1", model.RoleInstructor, nil, true)
	seedPost(t, store, "p1", "A post", "content", "i1", time.Now().UTC())

	resp := doReq(t, http.MethodGet, app.URL+"/api/posts/p1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var post postPayload
	decodeBody(t, resp, &post)
	if post.Title != "A post" || post.Author == nil || post.Author.ID != "i1" {
		t.Fatalf("unexpected post payload: %+v", post)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/api/posts/missing", "", nil)
	if msg := errorMessage(t, resp); resp.StatusCode != http.StatusNotFound || msg != "post not found" {
		t.Fatalf("expected 404 post not found, got %d %q", resp.StatusCode, msg)
	}
}

func TestCreatePost(t *testing.T) {
	app, store, cfg := newTestServer(t)
	instructor := seedUser(t, store, "i1", "Ana Souza", "ana@x.edu", "segredo1", model.RoleInstructor, nil, true)
	token := mustToken(t, cfg, instructor)

	resp := doReq(t, http.MethodPost, app.URL+"/api/posts", "", map[string]string{
		"title": "No auth", "content": "should fail",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, app.URL+"/api/posts", token, map[string]string{
		"title": "", "content": "missing title",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty title, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, app.URL+"/api/posts", token, map[string]string{
		"title": "Class notes", "content": "Today we covered fractions.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var post postPayload
	decodeBody(t, resp, &post)
	if post.Author == nil || post.Author.ID != "i1" {
		t.Fatalf("expected requester recorded as author, got %+v", post.Author)
	}
	if _, ok := store.posts[post.ID]; !ok {
		t.Fatalf("expected post persisted")
	}
}

func TestPostOwnership(t *testing.T) {
	app, store, cfg := newTestServer(t)
	author := seedUser(t, store, "i1", "Ana Souza", "ana@x.edu", "segredo1", model.RoleInstructor, nil, true)
	other := seedUser(t, store, "i2", "Bruno Lima", "bruno@x.edu", "secret1", model.RoleInstructor, nil, true)
	admin := seedUser(t, store, "a1", "Site Admin", "admin@x.edu", "secret1", model.RoleAdmin, nil, true)
	seedPost(t, store, "p1", "Ana's post", "hers", "i1", time.Now().UTC())
	seedPost(t, store, "p2", "Another post", "also hers", "i1", time.Now().UTC())

	authorToken := mustToken(t, cfg, author)
	otherToken := mustToken(t, cfg, other)
	adminToken := mustToken(t, cfg, admin)

	// A different non-admin account cannot edit or delete.
	resp := doReq(t, http.MethodPut, app.URL+"/api/posts/p1", otherToken, map[string]string{
		"title": "Hijacked", "content": "nope",
	})
	if msg := errorMessage(t, resp); resp.StatusCode != http.StatusForbidden || msg != "access denied" {
		t.Fatalf("expected 403 access denied, got %d %q", resp.StatusCode, msg)
	}
	resp = doReq(t, http.MethodDelete, app.URL+"/api/posts/p1", otherToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The author can edit their own post.
	resp = doReq(t, http.MethodPut, app.URL+"/api/posts/p1", authorToken, map[string]string{
		"title": "Ana's post (edited)", "content": "updated content",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for author edit, got %d", resp.StatusCode)
	}
	var post postPayload
	decodeBody(t, resp, &post)
	if post.Title != "Ana's post (edited)" {
		t.Fatalf("expected updated title, got %s", post.Title)
	}

	// The author can delete their own post.
	resp = doReq(t, http.MethodDelete, app.URL+"/api/posts/p1", authorToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for author delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// An admin can delete someone else's post.
	resp = doReq(t, http.MethodDelete, app.URL+"/api/posts/p2", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, app.URL+"/api/posts/p2", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSearchPosts(t *testing.T) {
	app, store, _ := newTestServer(t)
	seedUser(t, store, "i1", "Ana Souza", "ana@x.edu", "segredo1", model.RoleInstructor, nil, true)
	base := time.Now().UTC()
	seedPost(t, store, "p1", "Introduction to Algebra", "Variables and equations.", "i1", base)
	seedPost(t, store, "p2", "Grammar basics", "Nouns, verbs and ALGEBRA jokes.", "i1", base.Add(time.Minute))
	seedPost(t, store, "p3", "History of Rome", "The republic and the empire.", "i1", base.Add(2*time.Minute))

	resp := doReq(t, http.MethodGet, app.URL+"/api/posts/search?query=algebra", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var posts []postPayload
	decodeBody(t, resp, &posts)
	if len(posts) != 2 {
		t.Fatalf("expected case-insensitive match over title and content, got %d posts", len(posts))
	}

	resp = doReq(t, http.MethodGet, app.URL+"/api/posts/search", "", nil)
	if msg := errorMessage(t, resp); resp.StatusCode != http.StatusBadRequest || msg != "search query required" {
		t.Fatalf("expected 400 search query required, got %d %q", resp.StatusCode, msg)
	}
}
