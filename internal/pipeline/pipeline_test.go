package pipeline

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/recipeworks/photo-worker/internal/repository"
)

const (
	testBucket = "photos"
	testJobID  = "12345678-1234-1234-1234-123456789012"
	testRawKey = "raw/recipe-123.jpg"
)

func newTestRecipes(t *testing.T) (repository.RecipeRepository, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := repository.Migrate(context.Background(), db, nil); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return repository.NewRecipeRepository(db, repository.DialectSQLite, nil), db
}
