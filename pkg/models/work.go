package models

import "time"

// Work is the canonical, persisted form of one catalog item. All scraper
// sources (search page, info endpoint, detail page) are reconciled into this
// structure before anything is written to the store.
type Work struct {
	ID              string `json:"id"`         // catalog id, e.g. RJ01234567
	ProductID       string `json:"product_id"` // always equal to ID
	Title           string `json:"title"`
	Circle          string `json:"circle"`
	Description     string `json:"description,omitempty"`
	Category        string `json:"category"` // SOU, ADV, ... or "etc"
	WorkURL         string `json:"work_url"`
	ThumbnailURL    string `json:"thumbnail_url"`
	HighResImageURL string `json:"high_res_image_url,omitempty"`

	Price  Price   `json:"price"`
	Rating *Rating `json:"rating,omitempty"`

	SalesCount    *int `json:"sales_count,omitempty"`
	WishlistCount *int `json:"wishlist_count,omitempty"`

	// Creator roles. These are deduplicated sets: merges only ever add names,
	// so a name recorded once survives later fetches that lack that source.
	VoiceActors  []string `json:"voice_actors,omitempty"`
	Scenario     []string `json:"scenario,omitempty"`
	Illustration []string `json:"illustration,omitempty"`
	Music        []string `json:"music,omitempty"`
	Author       []string `json:"author,omitempty"`

	// Genres are the catalog's official classification; tags are the looser
	// user-facing labels scraped from pages. Kept separate on purpose.
	Genres []string `json:"genres,omitempty"`
	Tags   []string `json:"tags,omitempty"`

	ReleaseDate    string `json:"release_date,omitempty"`
	ReleaseDateISO string `json:"release_date_iso,omitempty"`
	AgeRating      string `json:"age_rating,omitempty"`
	SeriesName     string `json:"series_name,omitempty"`
	WorkFormat     string `json:"work_format,omitempty"`
	FileFormat     string `json:"file_format,omitempty"`
	IsExclusive    bool   `json:"is_exclusive"`

	SampleImages []SampleImage `json:"sample_images,omitempty"`
	FileInfo     *FileInfo     `json:"file_info,omitempty"`
	BonusContent []BonusItem   `json:"bonus_content,omitempty"`
	Translation  *Translation  `json:"translation,omitempty"`

	DataSources DataSources `json:"data_sources"`

	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastFetchedAt time.Time `json:"last_fetched_at"`
}

// Price always carries a currency and a non-negative current amount.
// Original, when present, is the pre-discount price and must exceed Current.
type Price struct {
	Current  int    `json:"current"`
	Original *int   `json:"original,omitempty"`
	Currency string `json:"currency"`
	Discount *int   `json:"discount,omitempty"` // percent
	Point    *int   `json:"point,omitempty"`
}

type Rating struct {
	Stars          float64        `json:"stars"` // 0..5
	Count          int            `json:"count"`
	ReviewCount    *int           `json:"review_count,omitempty"`
	Detail         []RatingBucket `json:"detail,omitempty"`
	AverageDecimal *float64       `json:"average_decimal,omitempty"`
}

// RatingBucket is one row of the per-star histogram from the info endpoint.
type RatingBucket struct {
	ReviewPoint int `json:"review_point"` // 1..5
	Count       int `json:"count"`
}

type SampleImage struct {
	Thumb  string `json:"thumb"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
}

type FileInfo struct {
	TotalSizeText     string   `json:"total_size_text,omitempty"`
	TotalSizeBytes    *int64   `json:"total_size_bytes,omitempty"`
	TotalDurationText string   `json:"total_duration_text,omitempty"`
	TotalDurationSec  *int     `json:"total_duration_sec,omitempty"`
	Formats           []string `json:"formats,omitempty"`
	AdditionalFiles   []string `json:"additional_files,omitempty"`
}

type BonusItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
}

// Translation records localized-edition lineage from the info endpoint.
// Localized works often share image assets with their original work.
type Translation struct {
	IsOriginal      bool   `json:"is_original,omitempty"`
	IsChild         bool   `json:"is_child,omitempty"`
	OriginalWorkID  string `json:"original_work_id,omitempty"`
	ParentWorkID    string `json:"parent_work_id,omitempty"`
	Lang            string `json:"lang,omitempty"`
	ImageOriginalID string `json:"image_original_id,omitempty"` // set by the image resolver
}

// DataSources tracks, per source, when it last contributed to this record.
// Debugging/quality bookkeeping only; merge logic never reads it.
type DataSources struct {
	SearchResult *SourceStamp `json:"search_result,omitempty"`
	InfoAPI      *SourceStamp `json:"info_api,omitempty"`
	DetailPage   *SourceStamp `json:"detail_page,omitempty"`
}

type SourceStamp struct {
	LastFetchedAt time.Time `json:"last_fetched_at"`
	Note          string    `json:"note,omitempty"`
}
