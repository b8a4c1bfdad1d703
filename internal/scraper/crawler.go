package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"dlhub/pkg/models"
	"dlhub/pkg/utils"
)

// ErrCrawlInProgress signals that another run holds the crawl lock.
var ErrCrawlInProgress = errors.New("crawl already in progress")

// Summary is what one Run reports back.
type Summary struct {
	RunID        string
	Skipped      bool // lock was held, nothing was fetched
	Completed    bool // the whole catalog was covered this run
	PagesFetched int
	ItemsSeen    int
	NewItems     int
	KnownItems   int
	Saved        int
	Failed       int
}

// Crawler walks the paginated search results and runs the full pipeline
// for every item: parse, enrich, reconcile, persist.
type Crawler struct {
	Store  Store
	Info   *InfoClient
	Images *ImageResolver
	Config utils.CrawlConfig
	Client *http.Client

	limiter *rate.Limiter
	now     func() time.Time
}

func NewCrawler(store Store, cfg utils.CrawlConfig) *Crawler {
	interval := cfg.PageDelay
	if interval <= 0 {
		interval = time.Second
	}
	return &Crawler{
		Store:   store,
		Info:    NewInfoClient(cfg.BaseURL),
		Images:  NewImageResolver(),
		Config:  cfg,
		Client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		now:     time.Now,
	}
}

// Run performs one bounded crawl pass. A held lock yields a skipped summary
// with no network traffic. Budget exhaustion persists the next page so the
// following run resumes exactly where this one stopped.
func (c *Crawler) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}

	acquired, err := c.Store.TryAcquireLock(ctx, c.now(), c.Config.LockTTL)
	if err != nil {
		return sum, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		log.Printf("[crawler] run %s: %v, skipping", sum.RunID, ErrCrawlInProgress)
		sum.Skipped = true
		return sum, nil
	}

	if err := c.crawl(ctx, &sum); err != nil {
		if recErr := c.Store.RecordCrawlError(ctx, err.Error(), c.now()); recErr != nil {
			log.Printf("[crawler] run %s: WARN record error failed: %v", sum.RunID, recErr)
		}
		if relErr := c.Store.ReleaseLock(ctx); relErr != nil {
			log.Printf("[crawler] run %s: WARN release lock failed: %v", sum.RunID, relErr)
		}
		return sum, err
	}

	if sum.Completed {
		total, err := c.Store.CountWorks(ctx)
		if err != nil {
			log.Printf("[crawler] run %s: WARN count works failed: %v", sum.RunID, err)
		}
		if err := c.Store.RecordCrawlComplete(ctx, c.now(), total); err != nil {
			log.Printf("[crawler] run %s: WARN record complete failed: %v", sum.RunID, err)
		}
	}

	if err := c.Store.ReleaseLock(ctx); err != nil {
		return sum, fmt.Errorf("release lock: %w", err)
	}

	log.Printf("[crawler] run %s done: pages=%d items=%d new=%d known=%d saved=%d failed=%d completed=%t",
		sum.RunID, sum.PagesFetched, sum.ItemsSeen, sum.NewItems, sum.KnownItems, sum.Saved, sum.Failed, sum.Completed)
	return sum, nil
}

func (c *Crawler) crawl(ctx context.Context, sum *Summary) error {
	md, err := c.Store.GetMetadata(ctx)
	if err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	page := md.CurrentPage
	if page < 1 {
		page = 1
	}
	log.Printf("[crawler] run %s: starting at page %d (budget %d)", sum.RunID, page, c.Config.PageBudget)

	for fetched := 0; fetched < c.Config.PageBudget; fetched++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		html, totalCount, err := c.fetchSearchPage(ctx, page)
		if err != nil {
			c.recordPageFailure(ctx, page, totalCount)
			return fmt.Errorf("page %d: %w", page, err)
		}
		sum.PagesFetched++

		items := ParseSearchHTML(html)
		log.Printf("[crawler] run %s: page %d yielded %d items", sum.RunID, page, len(items))
		if len(items) == 0 {
			sum.Completed = true
			return nil
		}
		sum.ItemsSeen += len(items)

		works, failed, newCount, err := c.processPage(ctx, items)
		if err != nil {
			c.recordPageFailure(ctx, page, totalCount)
			return fmt.Errorf("page %d: %w", page, err)
		}
		sum.NewItems += newCount
		sum.KnownItems += len(items) - newCount
		sum.Failed += failed

		res := CommitWorks(ctx, c.Store, works, CommitOptions{ChunkSize: maxChunkSize, ContinueOnFailure: true})
		sum.Saved += res.Succeeded
		sum.Failed += res.Failed
		if res.Failed > 0 && res.Succeeded == 0 {
			c.recordPageFailure(ctx, page, totalCount)
			return fmt.Errorf("page %d: persisting failed: %w", page, errors.Join(res.Errors...))
		}

		c.recordPageSuccess(ctx, page, res.Succeeded, totalCount)

		if err := c.Store.SetCurrentPage(ctx, page+1, c.now()); err != nil {
			return fmt.Errorf("save resume page: %w", err)
		}

		// termination: a short page or no link to the next one
		if len(items) < c.Config.ItemsPerPage || !HasNextPage(html, page+1) {
			sum.Completed = true
			return nil
		}
		page++
	}

	log.Printf("[crawler] run %s: page budget exhausted, resuming at page %d next run", sum.RunID, page)
	return nil
}

// processPage enriches every item and merges it against the stored record.
// New items get the full treatment (info, detail page, image resolution);
// known items only refresh their info data.
func (c *Crawler) processPage(ctx context.Context, items []RawSearchItem) ([]models.Work, int, int, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	existing, err := c.Store.GetWorks(ctx, ids)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("load existing works: %w", err)
	}

	type enriched struct {
		item   RawSearchItem
		info   *InfoResponse
		detail *DetailPageData
		image  *Resolution
	}

	var (
		mu      sync.Mutex
		results = make([]enriched, 0, len(items))
		failed  int
		newCnt  int
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := c.Config.Concurrency
	if limit <= 0 {
		limit = 3
	}
	g.SetLimit(limit)

	for _, item := range items {
		item := item
		_, known := existing[item.ProductID]
		if !known {
			newCnt++
		}

		g.Go(func() error {
			e := enriched{item: item}

			info, err := c.Info.Fetch(gctx, item.ProductID)
			if err != nil {
				// a work without info data still gets saved from the search row
				log.Printf("[crawler] %s: WARN info fetch failed: %v", item.ProductID, err)
			} else {
				e.info = info
			}

			if !known {
				if detailHTML, err := c.fetchDetailPage(gctx, item.ProductID); err != nil {
					log.Printf("[crawler] %s: WARN detail fetch failed: %v", item.ProductID, err)
					mu.Lock()
					failed++
					mu.Unlock()
				} else {
					d := ParseDetailHTML(detailHTML)
					e.detail = &d

					res := c.Images.Resolve(gctx, item.ProductID, d.HighResImageURL)
					e.image = &res
				}
			}

			mu.Lock()
			results = append(results, e)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, 0, err
	}

	now := c.now()
	works := make([]models.Work, 0, len(results))
	for _, e := range results {
		var prev *models.Work
		if w, ok := existing[e.item.ProductID]; ok {
			prev = &w
		}

		w := Merge(e.item, e.info, e.detail, prev, now)

		if e.image != nil {
			switch e.image.Method {
			case "failed":
				w.HighResImageURL = ""
			default:
				w.HighResImageURL = e.image.URL
			}
			if e.image.OriginalProductID != "" {
				if w.Translation == nil {
					w.Translation = &models.Translation{}
				}
				w.Translation.ImageOriginalID = e.image.OriginalProductID
			}
		}

		for _, warn := range Validate(w) {
			log.Printf("[crawler] %s: WARN %s", w.ID, warn)
		}
		works = append(works, w)
	}

	return works, failed, newCnt, nil
}

// fetchSearchPage downloads one search page. The endpoint answers with the
// AJAX JSON envelope; a plain HTML body is accepted too as long as it
// carries the result markers.
func (c *Crawler) fetchSearchPage(ctx context.Context, page int) (string, int, error) {
	url := fmt.Sprintf("%s/maniax/fsr/=/order/release/per_page/%d/page/%d/format/json",
		c.Config.BaseURL, c.Config.ItemsPerPage, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	setBrowserHeaders(req, c.Config.BaseURL)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read body: %w", err)
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var env searchEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return "", 0, fmt.Errorf("decode search envelope: %w", err)
		}
		if env.SearchResult == "" {
			return "", 0, fmt.Errorf("search envelope has no result html")
		}
		return env.SearchResult, env.PageInfo.Count, nil
	}

	if !looksLikeSearchHTML(trimmed) {
		return "", 0, fmt.Errorf("body is not a search result page")
	}
	return trimmed, 0, nil
}

func looksLikeSearchHTML(body string) bool {
	return strings.Contains(body, "work_1col_table") ||
		strings.Contains(body, "search_result_img_box")
}

// fetchDetailPage downloads a work's own page and rejects bodies that are
// error pages or bot-wall stubs rather than the real thing.
func (c *Crawler) fetchDetailPage(ctx context.Context, productID string) (string, error) {
	url := c.Config.BaseURL + "/maniax/work/=/product_id/" + productID + ".html"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	setBrowserHeaders(req, c.Config.BaseURL)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("work does not exist (status 404)")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	html := string(body)

	if len(html) < 1000 {
		return "", fmt.Errorf("body too short (%d bytes), likely an error page", len(html))
	}
	if strings.Contains(html, "エラーが発生しました") || strings.Contains(html, "ページが見つかりません") {
		return "", fmt.Errorf("site returned an error page")
	}
	if !strings.Contains(html, "work_name") && !strings.Contains(html, "work_outline") {
		return "", fmt.Errorf("body has no work markers")
	}
	return html, nil
}

func (c *Crawler) recordPageSuccess(ctx context.Context, page, saved, totalCount int) {
	p, err := c.Store.GetProgress(ctx)
	if err != nil {
		log.Printf("[crawler] WARN progress load failed: %v", err)
		return
	}
	if totalCount > 0 {
		p.TotalExpected = totalCount
	}
	p.RecordPageSuccess(page, saved, c.now())
	if err := c.Store.SaveProgress(ctx, p); err != nil {
		log.Printf("[crawler] WARN progress save failed: %v", err)
	}
}

func (c *Crawler) recordPageFailure(ctx context.Context, page, totalCount int) {
	p, err := c.Store.GetProgress(ctx)
	if err != nil {
		log.Printf("[crawler] WARN progress load failed: %v", err)
		return
	}
	if totalCount > 0 {
		p.TotalExpected = totalCount
	}
	p.RecordPageFailure(page, c.now())
	if err := c.Store.SaveProgress(ctx, p); err != nil {
		log.Printf("[crawler] WARN progress save failed: %v", err)
	}
}
