package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/onoki/glance/internal/model"
)

const searchTable = "task_search"

// SearchEntry is one row of the full-text index.
type SearchEntry struct {
	TaskID string
	Text   string
}

// SearchRepository maintains the FTS5 index over task text.
type SearchRepository struct {
	db *gorm.DB
}

func NewSearchRepository(db *gorm.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

// Replace drops any entry for taskID and writes text as its new entry.
func (r *SearchRepository) Replace(ctx context.Context, taskID, text string) error {
	db := conn(ctx, r.db)
	if err := db.Exec("DELETE FROM task_search WHERE task_id = ?", taskID).Error; err != nil {
		return fmt.Errorf("delete search entry: %w", err)
	}
	if err := db.Exec("INSERT INTO task_search (task_id, content) VALUES (?, ?)", taskID, text).Error; err != nil {
		return fmt.Errorf("insert search entry: %w", err)
	}
	return nil
}

func (r *SearchRepository) Delete(ctx context.Context, taskID string) error {
	if err := conn(ctx, r.db).Exec("DELETE FROM task_search WHERE task_id = ?", taskID).Error; err != nil {
		return fmt.Errorf("delete search entry: %w", err)
	}
	return nil
}

// Exists reports whether the index table is present.
func (r *SearchRepository) Exists(ctx context.Context) (bool, error) {
	var n int64
	err := conn(ctx, r.db).
		Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", searchTable).
		Scan(&n).Error
	if err != nil {
		return false, fmt.Errorf("probe search index: %w", err)
	}
	return n > 0, nil
}

// Rebuild recreates the index table and fills it with entries.
func (r *SearchRepository) Rebuild(ctx context.Context, entries []SearchEntry) error {
	db := conn(ctx, r.db)
	if err := db.Exec("DROP TABLE IF EXISTS task_search").Error; err != nil {
		return fmt.Errorf("drop search index: %w", err)
	}
	if err := db.Exec("CREATE VIRTUAL TABLE task_search USING fts5(task_id UNINDEXED, content)").Error; err != nil {
		return fmt.Errorf("create search index: %w", err)
	}
	for _, e := range entries {
		if err := db.Exec("INSERT INTO task_search (task_id, content) VALUES (?, ?)", e.TaskID, e.Text).Error; err != nil {
			return fmt.Errorf("insert search entry %s: %w", e.TaskID, err)
		}
	}
	return nil
}

// Entries returns the indexed text keyed by task id.
func (r *SearchRepository) Entries(ctx context.Context) (map[string]string, error) {
	rows, err := conn(ctx, r.db).Raw("SELECT task_id, content FROM task_search").Rows()
	if err != nil {
		return nil, fmt.Errorf("read search index: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan search entry: %w", err)
		}
		out[id] = text
	}
	return out, rows.Err()
}

// ErrMatchSyntax marks a MATCH expression the FTS engine rejected.
var ErrMatchSyntax = errors.New("fts match syntax")

// Query runs the hybrid search: the FTS match expression UNION an AND of
// case-insensitive LIKE patterns, newest update first. Either arm may be
// empty. Errors raised by the FTS engine for a bad match expression wrap
// ErrMatchSyntax.
func (r *SearchRepository) Query(ctx context.Context, match string, likes []string) ([]model.Task, error) {
	query, args, err := buildSearchSQL(match, likes)
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}
	if query == "" {
		return nil, nil
	}

	var rows []model.Task
	if err := conn(ctx, r.db).Raw(query, args...).Scan(&rows).Error; err != nil {
		if isMatchSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrMatchSyntax, err)
		}
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	return dedupeByID(rows), nil
}

func buildSearchSQL(match string, likes []string) (string, []any, error) {
	base := func() sq.SelectBuilder {
		return sq.Select("t.*").
			From("task_search ts").
			Join("tasks t ON t.id = ts.task_id")
	}

	var parts []string
	var args []any

	if match != "" {
		q, a, err := base().Where("task_search MATCH ?", match).ToSql()
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, q)
		args = append(args, a...)
	}

	if len(likes) > 0 {
		and := sq.And{}
		for _, p := range likes {
			and = append(and, sq.Expr(`lower(ts.content) LIKE ? ESCAPE '\'`, p))
		}
		q, a, err := base().Where(and).ToSql()
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, q)
		args = append(args, a...)
	}

	if len(parts) == 0 {
		return "", nil, nil
	}
	return strings.Join(parts, " UNION ") + " ORDER BY updated_at DESC, id ASC", args, nil
}

func dedupeByID(rows []model.Task) []model.Task {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for _, t := range rows {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// isMatchSyntaxError recognizes errors raised while parsing a MATCH
// expression. The surrounding SQL is fixed, so a generic SQLITE_ERROR can
// only come from user tokens. A missing index table is not a syntax error.
func isMatchSyntaxError(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	if serr.Code()&0xff != sqlite3.SQLITE_ERROR {
		return false
	}
	return !strings.Contains(strings.ToLower(serr.Error()), "no such table")
}
