package works

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dlhub/pkg/models"
)

// getManyChunkSize caps the number of ids in a single IN (...) query.
const getManyChunkSize = 10

type Repo struct {
	DB *sql.DB
}

type ListQuery struct {
	Q        string // keyword search in title/circle
	Category string
	Limit    int
	Offset   int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) GetWork(ctx context.Context, id string) (*models.Work, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT doc FROM works WHERE id = ?`, id)

	var doc string
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getWork: %w", err)
	}

	var w models.Work
	if err := json.Unmarshal([]byte(doc), &w); err != nil {
		return nil, fmt.Errorf("decode work %s: %w", id, err)
	}
	return &w, nil
}

// GetWorks fetches many works by id, chunking the IN clause. Missing ids are
// simply absent from the returned map.
func (r *Repo) GetWorks(ctx context.Context, ids []string) (map[string]models.Work, error) {
	out := make(map[string]models.Work, len(ids))

	for start := 0; start < len(ids); start += getManyChunkSize {
		end := start + getManyChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := strings.TrimRight(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := r.DB.QueryContext(ctx,
			`SELECT id, doc FROM works WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("getWorks query: %w", err)
		}

		for rows.Next() {
			var id, doc string
			if err := rows.Scan(&id, &doc); err != nil {
				rows.Close()
				return nil, fmt.Errorf("getWorks scan: %w", err)
			}
			var w models.Work
			if err := json.Unmarshal([]byte(doc), &w); err != nil {
				rows.Close()
				return nil, fmt.Errorf("decode work %s: %w", id, err)
			}
			out[id] = w
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("getWorks rows: %w", err)
		}
		rows.Close()
	}

	return out, nil
}

// SaveWorks upserts one batch of works in a single transaction.
func (r *Repo) SaveWorks(ctx context.Context, ws []models.Work) error {
	if len(ws) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO works (id, title, circle, category, doc, created_at, updated_at, last_fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			circle = excluded.circle,
			category = excluded.category,
			doc = excluded.doc,
			updated_at = excluded.updated_at,
			last_fetched_at = excluded.last_fetched_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, w := range ws {
		doc, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("encode work %s: %w", w.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			w.ID, w.Title, w.Circle, w.Category, string(doc),
			w.CreatedAt.UTC().Format(time.RFC3339),
			w.UpdatedAt.UTC().Format(time.RFC3339),
			w.LastFetchedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("upsert work %s: %w", w.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit works: %w", err)
	}
	return nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Work, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Work, 0, q.Limit)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		var w models.Work
		if err := json.Unmarshal([]byte(doc), &w); err != nil {
			return nil, fmt.Errorf("decode work: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// buildListSQL builds either COUNT(*) or SELECT list.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	baseSelect := `SELECT doc FROM works`
	if countOnly {
		baseSelect = `SELECT COUNT(*) FROM works`
	}

	var where []string
	var args []any

	if strings.TrimSpace(q.Q) != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(circle) LIKE ?)")
		kw := "%" + strings.ToLower(strings.TrimSpace(q.Q)) + "%"
		args = append(args, kw, kw)
	}

	if strings.TrimSpace(q.Category) != "" {
		where = append(where, "LOWER(category) = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(q.Category)))
	}

	sqlStr := baseSelect
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		sqlStr += " ORDER BY updated_at DESC"
		sqlStr += " LIMIT ? OFFSET ?"
		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

// CountWorks is the unfiltered total, used by the crawl pipeline.
func (r *Repo) CountWorks(ctx context.Context) (int, error) {
	return r.Count(ctx, ListQuery{})
}

type Stats struct {
	TotalWorks int            `json:"total_works"`
	ByCategory map[string]int `json:"by_category"`
}

func (r *Repo) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByCategory: map[string]int{}}

	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM works`).Scan(&st.TotalWorks); err != nil {
		return st, fmt.Errorf("stats total: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `SELECT category, COUNT(*) FROM works GROUP BY category`)
	if err != nil {
		return st, fmt.Errorf("stats categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return st, fmt.Errorf("stats scan: %w", err)
		}
		st.ByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("stats rows: %w", err)
	}
	return st, nil
}
