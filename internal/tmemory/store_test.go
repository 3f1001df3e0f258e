package tmemory_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/tomeglot/internal/tmemory"
	embeddingsmock "github.com/MrWong99/tomeglot/pkg/provider/embeddings/mock"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if TOMEGLOT_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TOMEGLOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TOMEGLOT_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [tmemory.Store] against a clean translations
// table, with cleanup registered on t.
func newTestStore(t *testing.T, opts ...tmemory.Option) *tmemory.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS translations"); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	store, err := tmemory.NewStore(ctx, dsn, "English", "French", testEmbeddingDim, opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStoreAndLookup_ExactMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Store(ctx, "Hello world.", "Bonjour le monde."); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok, err := store.Lookup(ctx, "Hello world.")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("stored translation not found")
	}
	if got != "Bonjour le monde." {
		t.Errorf("translation = %q", got)
	}
}

func TestLookup_Miss(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Lookup(context.Background(), "never stored")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Error("lookup reported a hit for unknown source")
	}
}

func TestStore_UpsertReplacesTranslation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Store(ctx, "Good morning.", "Bonjour."); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := store.Store(ctx, "Good morning.", "Bon matin."); err != nil {
		t.Fatalf("Store (second): %v", err)
	}

	got, ok, err := store.Lookup(ctx, "Good morning.")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if got != "Bon matin." {
		t.Errorf("translation = %q, want the replacement", got)
	}
}

func TestSuggest_ReturnsClosestMatches(t *testing.T) {
	embedder := &embeddingsmock.Provider{
		DimensionsValue: testEmbeddingDim,
		EmbedResult:     []float32{1, 0, 0, 0},
	}
	store := newTestStore(t, tmemory.WithEmbeddings(embedder))
	ctx := context.Background()

	if err := store.Store(ctx, "The cat sat.", "Le chat s'assit."); err != nil {
		t.Fatalf("Store: %v", err)
	}

	matches, err := store.Suggest(ctx, "The cat sat down.", 3)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Translation != "Le chat s'assit." {
		t.Errorf("match translation = %q", matches[0].Translation)
	}
	if matches[0].Distance > 0.001 {
		t.Errorf("identical embeddings should have ~zero distance, got %v", matches[0].Distance)
	}
}

func TestSuggest_WithoutEmbedderReturnsNothing(t *testing.T) {
	store := newTestStore(t)

	matches, err := store.Suggest(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches, want 0", len(matches))
	}
}

func TestLookup_LanguagePairIsolation(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	store := newTestStore(t)
	if err := store.Store(ctx, "Hello.", "Bonjour."); err != nil {
		t.Fatalf("Store: %v", err)
	}

	german, err := tmemory.NewStore(ctx, dsn, "English", "German", testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore (German): %v", err)
	}
	t.Cleanup(german.Close)

	_, ok, err := german.Lookup(ctx, "Hello.")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Error("German pair found a French-pair entry")
	}
}

func TestForPair(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t) // English → French

	if got := store.ForPair("English", "French"); got != store {
		t.Error("ForPair with the same pair returned a new store")
	}

	if err := store.Store(ctx, "Hello.", "Bonjour."); err != nil {
		t.Fatalf("Store: %v", err)
	}

	german := store.ForPair("English", "German")
	if _, ok, err := german.Lookup(ctx, "Hello."); err != nil {
		t.Fatalf("Lookup: %v", err)
	} else if ok {
		t.Error("derived German pair found a French-pair entry")
	}

	if err := german.Store(ctx, "Hello.", "Hallo."); err != nil {
		t.Fatalf("Store (German): %v", err)
	}
	if hit, ok, err := german.Lookup(ctx, "Hello."); err != nil || !ok || hit != "Hallo." {
		t.Errorf("Lookup (German) = %q, %t, %v; want Hallo., true, nil", hit, ok, err)
	}
	if hit, _, _ := store.Lookup(ctx, "Hello."); hit != "Bonjour." {
		t.Errorf("original pair lookup = %q, want Bonjour.", hit)
	}
}
