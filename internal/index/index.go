// Package index maintains a derived SQLite recall index over consolidated
// Origin memory. The index is rebuildable from the JSON masters at any time;
// it is never the source of truth.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/freshair129/eva-msp/internal/model"
	"github.com/freshair129/eva-msp/internal/store"
)

// Index is a SQLite-backed recall index over Origin.
type Index struct {
	db      *sql.DB
	entropy *rand.Rand
}

// Open opens or creates the index database at dbPath.
func Open(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}

	idx := &Index{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}

	return idx, nil
}

func (x *Index) Close() error { return x.db.Close() }

func (x *Index) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), x.entropy).String()
}

func (x *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id             TEXT PRIMARY KEY,
		kind           TEXT NOT NULL,
		ref_id         TEXT NOT NULL,
		title          TEXT NOT NULL,
		content        TEXT NOT NULL,
		confidence     REAL NOT NULL DEFAULT 0,
		origin_version INTEGER NOT NULL,
		indexed_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
	CREATE INDEX IF NOT EXISTS idx_records_ref ON records(ref_id);

	CREATE TABLE IF NOT EXISTS record_chunks (
		id        TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES records(id),
		seq       INTEGER NOT NULL,
		text      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_record ON record_chunks(record_id);
	`
	_, err := x.db.Exec(schema)
	return err
}

// Rebuild drops the index and re-derives it from the Origin masters.
// Episodic records index the summary plus turn text; semantic records index
// concept and definition with their confidence.
func (x *Index) Rebuild(ctx context.Context, origin *store.Origin) (int, error) {
	version := origin.Version()
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM record_chunks`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return 0, err
	}

	count := 0

	episodic := origin.LoadEpisodic()
	for _, ep := range episodic.Episodes {
		content := episodeText(ep)
		if content == "" {
			continue
		}
		title, _ := ep["summary"].(string)
		if title == "" {
			title = ep.ID()
		}
		if err := x.insertRecord(ctx, tx, "episodic", ep.ID(), title, content, 0, version, now); err != nil {
			return 0, err
		}
		count++
	}

	semantic := origin.LoadSemantic()
	for _, entry := range semantic.Entries {
		if err := x.insertRecord(ctx, tx, "semantic", entry.SemanticID,
			entry.Concept, entry.Definition, entry.Confidence, version, now); err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (x *Index) insertRecord(ctx context.Context, tx *sql.Tx, kind, refID, title, content string, conf float64, version int, now string) error {
	id := x.newID()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO records (id, kind, ref_id, title, content, confidence, origin_version, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, kind, refID, title, content, conf, version, now)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", refID, err)
	}

	for i, c := range chunkText(content, defaultChunkOptions()) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO record_chunks (id, record_id, seq, text) VALUES (?, ?, ?, ?)`,
			x.newID(), id, i, c)
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

// episodeText flattens an episode's recallable text: summary plus every
// turn's text field.
func episodeText(ep model.Episode) string {
	var parts []string
	if summary, ok := ep["summary"].(string); ok && summary != "" {
		parts = append(parts, summary)
	}
	if turns, ok := ep["turns"].([]any); ok {
		for _, t := range turns {
			turn, ok := t.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := turn["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Result is one recall hit.
type Result struct {
	Kind       string  `json:"kind"`
	RefID      string  `json:"ref_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Search finds records whose title, content, or chunk text contains the
// query substring. Semantic hits sort above episodic by confidence.
func (x *Index) Search(ctx context.Context, query, kind string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"

	where := []string{"(r.title LIKE ? OR r.content LIKE ? OR c.text LIKE ?)"}
	args := []any{like, like, like}
	if kind != "" {
		where = append(where, "r.kind = ?")
		args = append(args, kind)
	}

	sqlq := fmt.Sprintf(`
		SELECT DISTINCT r.id, r.kind, r.ref_id, r.title, r.content, r.confidence
		FROM records r
		LEFT JOIN record_chunks c ON c.record_id = r.id
		WHERE %s
		ORDER BY r.confidence DESC, r.rowid
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := x.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	seen := map[string]bool{}
	for rows.Next() {
		var id string
		var r Result
		if err := rows.Scan(&id, &r.Kind, &r.RefID, &r.Title, &r.Content, &r.Confidence); err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		results = append(results, r)
	}
	return results, rows.Err()
}

// Count returns the number of indexed records.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}
