package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dlhub/pkg/models"
)

func intPtr(v int) *int         { return &v }
func f64Ptr(v float64) *float64 { return &v }

func baseSearchItem() RawSearchItem {
	return RawSearchItem{
		ProductID:    "RJ405712",
		Title:        "ねこみみカフェへようこそ",
		Circle:       "しろねこ屋",
		Author:       []string{"小鳥遊すず"},
		Category:     "SOU",
		WorkURL:      "https://www.dlsite.com/maniax/work/=/product_id/RJ405712.html",
		ThumbnailURL: "https://img.dlsite.jp/resize/images2/work/doujin/RJ406000/RJ405712_img_main_240x240.jpg",
		CurrentPrice: 1320,
		Stars:        f64Ptr(4.5),
		RatingCount:  intPtr(100),
		Tags:         []string{"ASMR"},
	}
}

func TestMerge_SearchOnly(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	w := Merge(baseSearchItem(), nil, nil, nil, now)

	assert.Equal(t, "RJ405712", w.ID)
	assert.Equal(t, "RJ405712", w.ProductID)
	assert.Equal(t, "ねこみみカフェへようこそ", w.Title)
	assert.Equal(t, 1320, w.Price.Current)
	assert.Equal(t, "JPY", w.Price.Currency)
	assert.Equal(t, now, w.CreatedAt)
	assert.Equal(t, now, w.UpdatedAt)

	require.NotNil(t, w.Rating)
	assert.InDelta(t, 4.5, w.Rating.Stars, 0.001)
	assert.Equal(t, 100, w.Rating.Count)

	assert.Equal(t, []string{"小鳥遊すず"}, w.VoiceActors)
	require.NotNil(t, w.DataSources.SearchResult)
	assert.Nil(t, w.DataSources.InfoAPI)
	assert.Nil(t, w.DataSources.DetailPage)
}

func TestMerge_InfoOverridesSearchPriceAndRating(t *testing.T) {
	now := time.Now().UTC()
	info := &InfoResponse{
		Workno:          "RJ405712",
		Price:           990,
		LocalePrice:     map[string]int{"ja_JP": 880, "en_US": 8},
		OfficialPrice:   1100,
		RateAverageStar: 46,
		RateAverage2DP:  4.63,
		RateCount:       321,
		RateCountDetail: map[string]int{"5": 250, "4": 50, "3": 21},
		ReviewCount:     12,
		DLCount:         3210,
		WishlistCount:   77,
		RegistDate:      "2024-03-15",
	}

	w := Merge(baseSearchItem(), info, nil, nil, now)

	assert.Equal(t, 880, w.Price.Current)
	require.NotNil(t, w.Price.Original)
	assert.Equal(t, 1100, *w.Price.Original)

	require.NotNil(t, w.Rating)
	assert.InDelta(t, 4.6, w.Rating.Stars, 0.001)
	require.NotNil(t, w.Rating.AverageDecimal)
	assert.InDelta(t, 4.63, *w.Rating.AverageDecimal, 0.001)
	assert.Equal(t, 321, w.Rating.Count)
	require.NotNil(t, w.Rating.ReviewCount)
	assert.Equal(t, 12, *w.Rating.ReviewCount)
	require.Len(t, w.Rating.Detail, 3)
	assert.Equal(t, models.RatingBucket{ReviewPoint: 5, Count: 250}, w.Rating.Detail[0])

	require.NotNil(t, w.SalesCount)
	assert.Equal(t, 3210, *w.SalesCount)
	require.NotNil(t, w.WishlistCount)
	assert.Equal(t, 77, *w.WishlistCount)

	assert.Equal(t, "2024-03-15", w.ReleaseDate)
	assert.Equal(t, "2024-03-15", w.ReleaseDateISO)
	require.NotNil(t, w.DataSources.InfoAPI)
}

func TestMerge_DetailRatingWins(t *testing.T) {
	now := time.Now().UTC()
	info := &InfoResponse{
		Workno:          "RJ405712",
		RateAverageStar: 46,
		RateCount:       321,
	}
	detail := &DetailPageData{
		DetailedStars:       f64Ptr(4.91),
		DetailedRatingCount: intPtr(867),
		ReleaseDate:         "2024年3月15日",
		Description:         "お屋敷に迷い込んだあなたを案内します。",
	}

	w := Merge(baseSearchItem(), info, detail, nil, now)

	require.NotNil(t, w.Rating)
	assert.InDelta(t, 4.91, w.Rating.Stars, 0.001)
	assert.Equal(t, 867, w.Rating.Count)

	assert.Equal(t, "2024年3月15日", w.ReleaseDate)
	assert.Equal(t, "2024-03-15", w.ReleaseDateISO)
	assert.Equal(t, "お屋敷に迷い込んだあなたを案内します。", w.Description)
	require.NotNil(t, w.DataSources.DetailPage)
}

func TestMerge_RolesUnionAcrossSources(t *testing.T) {
	now := time.Now().UTC()
	info := &InfoResponse{
		Workno: "RJ405712",
		Creaters: &InfoCreators{
			VoiceBy:    []InfoCreator{{Name: "花澤ことり"}},
			ScenarioBy: []InfoCreator{{Name: "山田太郎"}},
		},
		Genres: []InfoGenre{{Name: "癒し"}, {Name: "耳かき"}},
	}
	detail := &DetailPageData{
		VoiceActors: []string{"小鳥遊すず", "花澤ことり"},
		Scenario:    []string{"佐藤花子"},
		Genres:      []string{"癒し", "ささやき"},
		DetailTags:  []string{"バイノーラル"},
	}
	existing := &models.Work{
		VoiceActors: []string{"引退した声優"},
		Genres:      []string{"過去ジャンル"},
		Tags:        []string{"旧タグ"},
		CreatedAt:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	w := Merge(baseSearchItem(), info, detail, existing, now)

	// union, deduplicated, info first then detail then search then existing
	assert.Equal(t, []string{"花澤ことり", "小鳥遊すず", "引退した声優"}, w.VoiceActors)
	assert.Equal(t, []string{"山田太郎", "佐藤花子"}, w.Scenario)
	assert.Equal(t, []string{"癒し", "ささやき", "耳かき", "過去ジャンル"}, w.Genres)
	assert.Equal(t, []string{"ASMR", "バイノーラル", "旧タグ"}, w.Tags)

	// re-crawling never loses the original creation time
	assert.Equal(t, existing.CreatedAt, w.CreatedAt)
}

func TestMerge_ExistingFieldsSurviveMissingSources(t *testing.T) {
	now := time.Now().UTC()
	existing := &models.Work{
		Description:     "以前に取得した説明文。",
		SeriesName:      "ねこみみシリーズ",
		WorkFormat:      "ボイス・ASMR",
		FileFormat:      "MP3",
		ReleaseDate:     "2024年3月15日",
		AgeRating:       "18禁",
		HighResImageURL: "https://img.dlsite.jp/x/RJ405712_img_main.webp",
		CreatedAt:       time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	item := baseSearchItem()
	item.AgeRating = ""

	w := Merge(item, nil, nil, existing, now)

	assert.Equal(t, "以前に取得した説明文。", w.Description)
	assert.Equal(t, "ねこみみシリーズ", w.SeriesName)
	assert.Equal(t, "ボイス・ASMR", w.WorkFormat)
	assert.Equal(t, "MP3", w.FileFormat)
	assert.Equal(t, "2024年3月15日", w.ReleaseDate)
	assert.Equal(t, "18禁", w.AgeRating)
	assert.Equal(t, "https://img.dlsite.jp/x/RJ405712_img_main.webp", w.HighResImageURL)
}

func TestMerge_Idempotent(t *testing.T) {
	now := time.Now().UTC()
	info := &InfoResponse{
		Workno:   "RJ405712",
		Creaters: &InfoCreators{VoiceBy: []InfoCreator{{Name: "花澤ことり"}}},
	}

	first := Merge(baseSearchItem(), info, nil, nil, now)
	second := Merge(baseSearchItem(), info, nil, &first, now)

	assert.Equal(t, first.VoiceActors, second.VoiceActors)
	assert.Equal(t, first.Tags, second.Tags)
	assert.Equal(t, first.Price, second.Price)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestMerge_Translation(t *testing.T) {
	now := time.Now().UTC()
	info := &InfoResponse{
		Workno: "RJ405712",
		TranslationInfo: &InfoTranslation{
			IsChild:        true,
			OriginalWorkno: "RJ888888",
			Lang:           "JPN",
		},
	}

	w := Merge(baseSearchItem(), info, nil, nil, now)
	require.NotNil(t, w.Translation)
	assert.True(t, w.Translation.IsChild)
	assert.Equal(t, "RJ888888", w.Translation.OriginalWorkID)
	assert.Equal(t, "JPN", w.Translation.Lang)

	// an all-zero translation block means the field stays unset
	info.TranslationInfo = &InfoTranslation{}
	w = Merge(baseSearchItem(), info, nil, nil, now)
	assert.Nil(t, w.Translation)
}

func TestToISODate(t *testing.T) {
	assert.Equal(t, "2024-03-15", toISODate("2024年3月15日"))
	assert.Equal(t, "2024-03-15", toISODate("2024-03-15"))
	assert.Equal(t, "2024-03-15", toISODate("2024-03-15 10:30:00"))
	assert.Equal(t, "", toISODate("近日発売"))
	assert.Equal(t, "", toISODate(""))
}

func TestValidate(t *testing.T) {
	now := time.Now().UTC()
	w := Merge(baseSearchItem(), nil, nil, nil, now)
	assert.Empty(t, Validate(w))

	w.Title = ""
	w.Price.Current = -1
	w.Price.Discount = intPtr(150)
	w.Rating.Stars = 6
	w.WorkURL = "::not a url"

	warnings := Validate(w)
	assert.Contains(t, warnings, "title is empty")
	assert.Contains(t, warnings, "price is negative")
	assert.Contains(t, warnings, "discount out of range")
	assert.Contains(t, warnings, "rating stars out of range")
	assert.Contains(t, warnings, "work url invalid")
}

func TestValidate_OriginalPriceMustExceedCurrent(t *testing.T) {
	now := time.Now().UTC()
	w := Merge(baseSearchItem(), nil, nil, nil, now)
	w.Price.Original = intPtr(1320)

	warnings := Validate(w)
	assert.Contains(t, warnings, "original price not above current")
}
