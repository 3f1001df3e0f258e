// Package tmemory provides the optional PostgreSQL-backed translation memory.
//
// Every successful chunk translation is stored keyed by a hash of its source
// text and language pair. Before asking the model, the engine consults the
// memory: an exact hit is reused verbatim, which makes re-translating an
// updated document cheap. When an embeddings provider is configured, stored
// segments are also embedded and [Store.Suggest] returns the closest previous
// translations by cosine distance (fuzzy matches are never reused silently;
// they are surfaced as suggestions only).
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it via CREATE EXTENSION IF NOT EXISTS.
package tmemory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/tomeglot/internal/engine"
	"github.com/MrWong99/tomeglot/pkg/provider/embeddings"
)

// ddl returns the translations DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS translations (
    source_hash  TEXT         NOT NULL,
    source_lang  TEXT         NOT NULL,
    target_lang  TEXT         NOT NULL,
    source_text  TEXT         NOT NULL,
    translation  TEXT         NOT NULL,
    embedding    vector(%d),
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (source_hash, source_lang, target_lang)
);

CREATE INDEX IF NOT EXISTS idx_translations_langs
    ON translations (source_lang, target_lang);

CREATE INDEX IF NOT EXISTS idx_translations_embedding
    ON translations USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the translations table and pgvector extension
// exist. Idempotent and safe to call on every application start.
//
// embeddingDimensions must match the configured embeddings model (e.g., 768
// for nomic-embed-text, 1536 for OpenAI text-embedding-3-small). Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("tmemory migrate: %w", err)
	}
	return nil
}

// Match is a fuzzy translation-memory suggestion.
type Match struct {
	// SourceText is the previously translated source segment.
	SourceText string

	// Translation is its stored translation.
	Translation string

	// Distance is the cosine distance to the query (smaller is closer).
	Distance float64
}

// Store is the PostgreSQL translation memory. It implements [engine.Memory]
// for a fixed language pair. All methods are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider // nil disables fuzzy search
	logger   *slog.Logger

	sourceLang string
	targetLang string
}

var _ engine.Memory = (*Store)(nil)

// Option is a functional option for [NewStore].
type Option func(*Store)

// WithEmbeddings attaches an embeddings provider, enabling fuzzy suggestions
// and embedding of newly stored segments.
func WithEmbeddings(p embeddings.Provider) Option {
	return func(s *Store) { s.embedder = p }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore connects to the PostgreSQL database at dsn, registers pgvector
// types on every connection, runs [Migrate], and returns a memory scoped to
// the given language pair.
func NewStore(ctx context.Context, dsn, sourceLang, targetLang string, embeddingDimensions int, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("tmemory: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tmemory: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tmemory: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{
		pool:       pool,
		logger:     slog.Default(),
		sourceLang: sourceLang,
		targetLang: targetLang,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ForPair returns a memory scoped to another language pair sharing the same
// pool and embedder. Closing either store closes the shared pool.
func (s *Store) ForPair(sourceLang, targetLang string) *Store {
	if sourceLang == s.sourceLang && targetLang == s.targetLang {
		return s
	}
	derived := *s
	derived.sourceLang = sourceLang
	derived.targetLang = targetLang
	return &derived
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Suitable as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// hashSource returns the hex SHA-256 of the source text.
func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Lookup implements [engine.Memory]. It returns the stored translation for an
// exact source-text match within the store's language pair.
func (s *Store) Lookup(ctx context.Context, source string) (string, bool, error) {
	const q = `
		SELECT translation
		FROM   translations
		WHERE  source_hash = $1 AND source_lang = $2 AND target_lang = $3`

	var translation string
	err := s.pool.QueryRow(ctx, q, hashSource(source), s.sourceLang, s.targetLang).Scan(&translation)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tmemory: lookup: %w", err)
	}
	return translation, true, nil
}

// Store implements [engine.Memory]. It upserts the translation; when an
// embeddings provider is configured the source is embedded so the segment
// participates in fuzzy search. Embedding failures are logged and do not fail
// the store — the exact-match row is still written.
func (s *Store) Store(ctx context.Context, source, translation string) error {
	var vec any
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, source)
		if err != nil {
			s.logger.Warn("tmemory: embedding failed, storing without vector", "err", err)
		} else {
			vec = pgvector.NewVector(emb)
		}
	}

	const q = `
		INSERT INTO translations
		    (source_hash, source_lang, target_lang, source_text, translation, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_hash, source_lang, target_lang) DO UPDATE SET
		    translation = EXCLUDED.translation,
		    embedding   = COALESCE(EXCLUDED.embedding, translations.embedding)`

	_, err := s.pool.Exec(ctx, q, hashSource(source), s.sourceLang, s.targetLang, source, translation, vec)
	if err != nil {
		return fmt.Errorf("tmemory: store: %w", err)
	}
	return nil
}

// Suggest returns up to topK stored segments closest to source by cosine
// distance, ordered most similar first. Requires an embeddings provider;
// without one it returns an empty slice.
func (s *Store) Suggest(ctx context.Context, source string, topK int) ([]Match, error) {
	if s.embedder == nil || topK <= 0 {
		return nil, nil
	}

	emb, err := s.embedder.Embed(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("tmemory: embed query: %w", err)
	}

	const q = `
		SELECT source_text, translation, embedding <=> $1 AS distance
		FROM   translations
		WHERE  source_lang = $2 AND target_lang = $3 AND embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $4`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(emb), s.sourceLang, s.targetLang, topK)
	if err != nil {
		return nil, fmt.Errorf("tmemory: suggest: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var m Match
		err := row.Scan(&m.SourceText, &m.Translation, &m.Distance)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("tmemory: suggest scan: %w", err)
	}
	return matches, nil
}
