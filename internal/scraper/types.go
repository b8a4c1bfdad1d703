package scraper

import "dlhub/pkg/models"

// RawSearchItem is what one search-result row yields before any enrichment.
// Pointer fields distinguish "absent on the page" from a real zero.
type RawSearchItem struct {
	ProductID    string
	Title        string
	Circle       string
	Author       []string // voice-actor column; role refined later by the merger
	Category     string
	WorkURL      string
	ThumbnailURL string

	CurrentPrice  int
	OriginalPrice *int
	Discount      *int
	Point         *int

	Stars       *float64
	RatingCount *int
	ReviewCount *int
	SalesCount  *int

	AgeRating   string
	IsExclusive bool
	Tags        []string

	SampleImages []models.SampleImage
}

// InfoResponse is the subset of the per-item info endpoint payload the
// pipeline consumes. The endpoint returns a one-element JSON array of these.
type InfoResponse struct {
	Workno        string         `json:"workno"`
	WorkName      string         `json:"work_name"`
	MakerID       string         `json:"maker_id"`
	MakerName     string         `json:"maker_name"`
	RegistDate    string         `json:"regist_date"`
	FileType      string         `json:"file_type"`
	Price         int            `json:"price"`
	LocalePrice   map[string]int `json:"locale_price"`
	OfficialPrice int            `json:"official_price"`

	RateAverageStar float64        `json:"rate_average_star"` // 10..50, stars x10
	RateAverage2DP  float64        `json:"rate_average_2dp"`
	RateCount       int            `json:"rate_count"`
	RateCountDetail map[string]int `json:"rate_count_detail"` // star -> count

	DLCount       int `json:"dl_count"`
	WishlistCount int `json:"wishlist_count"`
	ReviewCount   int `json:"review_count"`

	Creaters *InfoCreators `json:"creaters"`
	Genres   []InfoGenre   `json:"genres"`

	Title *InfoSeries `json:"title"`

	TranslationInfo *InfoTranslation `json:"translation_info"`

	ImageMain *InfoImage `json:"image_main"`
}

type InfoCreators struct {
	VoiceBy    []InfoCreator `json:"voice_by"`
	ScenarioBy []InfoCreator `json:"scenario_by"`
	IllustBy   []InfoCreator `json:"illust_by"`
	MusicBy    []InfoCreator `json:"music_by"`
	OtherBy    []InfoCreator `json:"other_by"`
}

type InfoCreator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type InfoGenre struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

type InfoSeries struct {
	TitleID   string `json:"title_id"`
	TitleName string `json:"title_name"`
}

type InfoTranslation struct {
	IsOriginal      bool   `json:"is_original"`
	IsChild         bool   `json:"is_child"`
	OriginalWorkno  string `json:"original_workno"`
	ParentWorkno    string `json:"parent_workno"`
	Lang            string `json:"lang"`
}

type InfoImage struct {
	Workno   string `json:"workno"`
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

// DetailPageData holds everything the work's own page contributes.
type DetailPageData struct {
	ReleaseDate string
	SeriesName  string
	AgeRating   string
	WorkFormat  string
	FileFormat  string
	Genres      []string
	DetailTags  []string

	VoiceActors  []string
	Scenario     []string
	Illustration []string
	Music        []string
	Author       []string

	FileInfo     *models.FileInfo
	BonusContent []models.BonusItem

	Description     string
	HighResImageURL string

	DetailedStars       *float64
	DetailedRatingCount *int
}
