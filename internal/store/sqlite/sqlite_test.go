package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/nostrmigrate/corepipe/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClaimPendingMigrationTransitionsOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := model.Migration{ID: "mig-1", Handle: "alice", PublicKey: "pub", SecretKey: "sec", Status: model.MigrationPending}
	if err := s.CreateMigration(ctx, m); err != nil {
		t.Fatalf("CreateMigration: %v", err)
	}

	claimed, ok, err := s.ClaimPendingMigration(ctx)
	if err != nil || !ok {
		t.Fatalf("ClaimPendingMigration: ok=%v err=%v", ok, err)
	}
	if claimed.Status != model.MigrationProcessing {
		t.Errorf("claimed status = %s, want processing", claimed.Status)
	}

	_, ok, err = s.ClaimPendingMigration(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatal("expected second claim to find nothing pending")
	}
}

func TestCompleteMigrationScrubsSecret(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := model.Migration{ID: "mig-2", Handle: "bob", PublicKey: "pub", SecretKey: "sec", Status: model.MigrationPending}
	if err := s.CreateMigration(ctx, m); err != nil {
		t.Fatalf("CreateMigration: %v", err)
	}
	if err := s.CompleteMigration(ctx, "mig-2"); err != nil {
		t.Fatalf("CompleteMigration: %v", err)
	}
	got, err := s.GetMigration(ctx, "mig-2")
	if err != nil {
		t.Fatalf("GetMigration: %v", err)
	}
	if got.Status != model.MigrationComplete {
		t.Errorf("status = %s, want complete", got.Status)
	}
	if got.SecretKey != model.ScrubbedSecretKey {
		t.Errorf("secret key not scrubbed: %q", got.SecretKey)
	}
}

func TestClaimPendingPostsRoundTripsMediaItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mig := model.Migration{ID: "mig-3", Handle: "carol", Status: model.MigrationPending}
	if err := s.CreateMigration(ctx, mig); err != nil {
		t.Fatalf("CreateMigration: %v", err)
	}
	p := model.Post{
		ID: "post-1", MigrationID: "mig-3", PostType: model.PostCarousel, Status: model.PostPending,
		MediaItems: []model.MediaItem{
			{SourceURL: "https://cdn/a.jpg", MediaType: model.MediaImage},
			{SourceURL: "https://cdn/b.jpg", MediaType: model.MediaImage},
		},
	}
	if err := s.CreatePost(ctx, p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	claimed, err := s.ClaimPendingPosts(ctx, 5)
	if err != nil {
		t.Fatalf("ClaimPendingPosts: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d posts, want 1", len(claimed))
	}
	if claimed[0].Status != model.PostUploading {
		t.Errorf("status = %s, want uploading", claimed[0].Status)
	}
	if len(claimed[0].MediaItems) != 2 {
		t.Fatalf("media items = %d, want 2", len(claimed[0].MediaItems))
	}
	if claimed[0].MediaItems[1].SourceURL != "https://cdn/b.jpg" {
		t.Errorf("media item order not preserved: %+v", claimed[0].MediaItems)
	}

	if _, err := s.ClaimPendingPosts(ctx, 5); err != nil {
		t.Fatalf("second claim: %v", err)
	}
}

func TestFailPostRetriesThenErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mig := model.Migration{ID: "mig-4", Status: model.MigrationPending}
	s.CreateMigration(ctx, mig)
	p := model.Post{ID: "post-2", MigrationID: "mig-4", PostType: model.PostImage, Status: model.PostPending}
	if err := s.CreatePost(ctx, p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	retried, err := s.FailPost(ctx, "post-2", "upload failed", 1)
	if err != nil {
		t.Fatalf("FailPost: %v", err)
	}
	if !retried {
		t.Fatal("expected first failure to retry")
	}
	got, err := s.GetPost(ctx, "post-2")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Status != model.PostPending || got.RetryCount != 1 {
		t.Errorf("after first failure: status=%s retry=%d", got.Status, got.RetryCount)
	}

	retried, err = s.FailPost(ctx, "post-2", "upload failed again", 1)
	if err != nil {
		t.Fatalf("FailPost: %v", err)
	}
	if retried {
		t.Fatal("expected second failure past maxRetries to be terminal")
	}
	got, err = s.GetPost(ctx, "post-2")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Status != model.PostError {
		t.Errorf("status = %s, want error", got.Status)
	}
}

func TestClaimPendingProfile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mig := model.Migration{ID: "mig-5", Status: model.MigrationPending}
	s.CreateMigration(ctx, mig)
	prof := model.Profile{ID: "prof-1", MigrationID: "mig-5", Name: "Dee", Published: model.ProfileUnpublished}
	if err := s.CreateProfile(ctx, prof); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	claimed, ok, err := s.ClaimPendingProfile(ctx)
	if err != nil || !ok {
		t.Fatalf("ClaimPendingProfile: ok=%v err=%v", ok, err)
	}
	if claimed.Published != model.ProfileProcessing {
		t.Errorf("published = %d, want processing", claimed.Published)
	}

	if err := s.CompleteProfile(ctx, "prof-1", "https://blob/avatar"); err != nil {
		t.Fatalf("CompleteProfile: %v", err)
	}
	_, ok, err = s.ClaimPendingProfile(ctx)
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if ok {
		t.Fatal("expected published profile to no longer be claimable")
	}
}

func TestResetStalePosts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mig := model.Migration{ID: "mig-6", Status: model.MigrationPending}
	s.CreateMigration(ctx, mig)
	p := model.Post{ID: "post-3", MigrationID: "mig-6", PostType: model.PostReel, Status: model.PostPending}
	s.CreatePost(ctx, p)
	if _, err := s.ClaimPendingPosts(ctx, 1); err != nil {
		t.Fatalf("ClaimPendingPosts: %v", err)
	}

	// Force the row to look old by moving updated_at into the past.
	if _, err := s.db.ExecContext(ctx, `UPDATE posts SET updated_at = ? WHERE id = ?`, time.Now().Add(-time.Hour).Unix(), "post-3"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := s.ResetStalePosts(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("ResetStalePosts: %v", err)
	}
	if n != 1 {
		t.Fatalf("reset %d posts, want 1", n)
	}
	got, err := s.GetPost(ctx, "post-3")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Status != model.PostPending {
		t.Errorf("status = %s, want pending after stale reset", got.Status)
	}
}

func TestQueueDepth(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mig := model.Migration{ID: "mig-7", Status: model.MigrationPending}
	s.CreateMigration(ctx, mig)
	s.CreatePost(ctx, model.Post{ID: "post-4", MigrationID: "mig-7", PostType: model.PostText, Status: model.PostPending})
	s.CreateArticle(ctx, model.Article{ID: "art-1", MigrationID: "mig-7", Status: model.ArticlePending})
	s.CreateProfile(ctx, model.Profile{ID: "prof-2", MigrationID: "mig-7", Published: model.ProfileUnpublished})

	d, err := s.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if d.Migrations != 1 || d.Posts != 1 || d.Articles != 1 || d.Profiles != 1 {
		t.Errorf("depth = %+v, want all 1", d)
	}
}
