package models

import "time"

// CrawlMetadata is the singleton document that makes crawls resumable and
// mutually exclusive. CurrentPage is the next page to fetch when a previous
// run stopped early; zero means start from page 1.
type CrawlMetadata struct {
	CurrentPage                 int        `json:"current_page"`
	IsInProgress                bool       `json:"is_in_progress"`
	LastError                   string     `json:"last_error,omitempty"`
	LastFetchedAt               *time.Time `json:"last_fetched_at,omitempty"`
	LastSuccessfulCompleteFetch *time.Time `json:"last_successful_complete_fetch,omitempty"`
	TotalWorks                  int        `json:"total_works"`
}

// CollectionProgress is advisory monitoring state. It never influences crawl
// control flow; a stale or wrong value here only skews the dashboard.
type CollectionProgress struct {
	TotalExpected  int       `json:"total_expected"`
	TotalCollected int       `json:"total_collected"`
	LastPage       int       `json:"last_page"`
	FailedPages    []int     `json:"failed_pages,omitempty"`
	Completeness   float64   `json:"completeness"` // percent, 0..100
	LastUpdated    time.Time `json:"last_updated"`
}

// RecordPageSuccess folds one successfully persisted page into the progress
// document and drops the page from FailedPages if an earlier run recorded it.
func (p *CollectionProgress) RecordPageSuccess(page, itemCount int, now time.Time) {
	p.TotalCollected += itemCount
	if page > p.LastPage {
		p.LastPage = page
	}
	kept := p.FailedPages[:0]
	for _, fp := range p.FailedPages {
		if fp != page {
			kept = append(kept, fp)
		}
	}
	p.FailedPages = kept
	p.recompute(now)
}

// RecordPageFailure marks a page as failed, deduplicated.
func (p *CollectionProgress) RecordPageFailure(page int, now time.Time) {
	for _, fp := range p.FailedPages {
		if fp == page {
			p.recompute(now)
			return
		}
	}
	p.FailedPages = append(p.FailedPages, page)
	p.recompute(now)
}

func (p *CollectionProgress) recompute(now time.Time) {
	if p.TotalExpected > 0 {
		p.Completeness = float64(p.TotalCollected) / float64(p.TotalExpected) * 100
		if p.Completeness > 100 {
			p.Completeness = 100
		}
	} else {
		p.Completeness = 0
	}
	p.LastUpdated = now
}
