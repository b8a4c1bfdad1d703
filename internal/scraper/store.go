package scraper

import (
	"context"
	"time"

	"dlhub/pkg/models"
)

// Store is what the crawl pipeline needs from persistence. internal/works
// implements it over sqlite; tests use an in-memory fake.
type Store interface {
	GetWork(ctx context.Context, id string) (*models.Work, error)
	GetWorks(ctx context.Context, ids []string) (map[string]models.Work, error)
	SaveWorks(ctx context.Context, works []models.Work) error

	TryAcquireLock(ctx context.Context, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context) error
	GetMetadata(ctx context.Context) (models.CrawlMetadata, error)
	SetCurrentPage(ctx context.Context, page int, now time.Time) error
	RecordCrawlError(ctx context.Context, msg string, now time.Time) error
	RecordCrawlComplete(ctx context.Context, now time.Time, totalWorks int) error

	GetProgress(ctx context.Context) (models.CollectionProgress, error)
	SaveProgress(ctx context.Context, p models.CollectionProgress) error

	CountWorks(ctx context.Context) (int, error)
}
