package works

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dlhub/pkg/models"
)

// ensureMetadataRow creates the singleton rows if they do not exist yet.
func (r *Repo) ensureMetadataRow(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO crawl_metadata (id) VALUES (1)`); err != nil {
		return fmt.Errorf("init crawl_metadata: %w", err)
	}
	if _, err := r.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO collection_progress (id) VALUES (1)`); err != nil {
		return fmt.Errorf("init collection_progress: %w", err)
	}
	return nil
}

// TryAcquireLock attempts to take the crawl lock with a single conditional
// UPDATE, so two concurrent runs cannot both win. A lock older than ttl is
// treated as abandoned by a dead run and taken over.
func (r *Repo) TryAcquireLock(ctx context.Context, now time.Time, ttl time.Duration) (bool, error) {
	if err := r.ensureMetadataRow(ctx); err != nil {
		return false, err
	}

	cutoff := now.Add(-ttl).UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `
		UPDATE crawl_metadata
		SET is_in_progress = 1, lock_acquired_at = ?
		WHERE id = 1
		  AND (is_in_progress = 0 OR lock_acquired_at IS NULL OR lock_acquired_at < ?)
	`, now.UTC().Format(time.RFC3339), cutoff)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock rows: %w", err)
	}
	return n == 1, nil
}

func (r *Repo) ReleaseLock(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE crawl_metadata
		SET is_in_progress = 0, lock_acquired_at = NULL
		WHERE id = 1
	`); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (r *Repo) GetMetadata(ctx context.Context) (models.CrawlMetadata, error) {
	var (
		md       models.CrawlMetadata
		progress int
		fetched  sql.NullString
		complete sql.NullString
	)

	row := r.DB.QueryRowContext(ctx, `
		SELECT current_page, is_in_progress, last_error, last_fetched_at,
		       last_successful_complete_fetch, total_works
		FROM crawl_metadata WHERE id = 1
	`)
	err := row.Scan(&md.CurrentPage, &progress, &md.LastError, &fetched, &complete, &md.TotalWorks)
	if err == sql.ErrNoRows {
		return md, nil
	}
	if err != nil {
		return md, fmt.Errorf("scan metadata: %w", err)
	}

	md.IsInProgress = progress == 1
	md.LastFetchedAt = parseTimePtr(fetched)
	md.LastSuccessfulCompleteFetch = parseTimePtr(complete)
	return md, nil
}

// SetCurrentPage persists the resume point after each page.
func (r *Repo) SetCurrentPage(ctx context.Context, page int, now time.Time) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE crawl_metadata
		SET current_page = ?, last_fetched_at = ?
		WHERE id = 1
	`, page, now.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("set current page: %w", err)
	}
	return nil
}

// RecordCrawlError stores the failure message for the status API.
func (r *Repo) RecordCrawlError(ctx context.Context, msg string, now time.Time) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE crawl_metadata
		SET last_error = ?, last_fetched_at = ?
		WHERE id = 1
	`, msg, now.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record crawl error: %w", err)
	}
	return nil
}

// RecordCrawlComplete marks a full pass over the catalog: the resume page is
// cleared so the next run starts from page 1.
func (r *Repo) RecordCrawlComplete(ctx context.Context, now time.Time, totalWorks int) error {
	ts := now.UTC().Format(time.RFC3339)
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE crawl_metadata
		SET current_page = 0, last_error = '', last_fetched_at = ?,
		    last_successful_complete_fetch = ?, total_works = ?
		WHERE id = 1
	`, ts, ts, totalWorks); err != nil {
		return fmt.Errorf("record crawl complete: %w", err)
	}
	return nil
}

func (r *Repo) GetProgress(ctx context.Context) (models.CollectionProgress, error) {
	var (
		p       models.CollectionProgress
		failed  string
		updated sql.NullString
	)

	row := r.DB.QueryRowContext(ctx, `
		SELECT total_expected, total_collected, last_page, failed_pages, completeness, last_updated
		FROM collection_progress WHERE id = 1
	`)
	err := row.Scan(&p.TotalExpected, &p.TotalCollected, &p.LastPage, &failed, &p.Completeness, &updated)
	if err == sql.ErrNoRows {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("scan progress: %w", err)
	}

	_ = json.Unmarshal([]byte(failed), &p.FailedPages)
	if t := parseTimePtr(updated); t != nil {
		p.LastUpdated = *t
	}
	return p, nil
}

func (r *Repo) SaveProgress(ctx context.Context, p models.CollectionProgress) error {
	if err := r.ensureMetadataRow(ctx); err != nil {
		return err
	}

	failed, err := json.Marshal(p.FailedPages)
	if err != nil {
		return fmt.Errorf("encode failed pages: %w", err)
	}
	if p.FailedPages == nil {
		failed = []byte("[]")
	}

	if _, err := r.DB.ExecContext(ctx, `
		UPDATE collection_progress
		SET total_expected = ?, total_collected = ?, last_page = ?,
		    failed_pages = ?, completeness = ?, last_updated = ?
		WHERE id = 1
	`, p.TotalExpected, p.TotalCollected, p.LastPage, string(failed),
		p.Completeness, p.LastUpdated.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
