package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"dlhub/pkg/models"
)

var jpDateRe = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)

// Merge reconciles the three sources and any previously stored record into
// one canonical Work. It is pure: same inputs, same output. Every list field
// is a set union that includes the existing record, so re-crawling can only
// add information, never lose it.
func Merge(search RawSearchItem, info *InfoResponse, detail *DetailPageData, existing *models.Work, now time.Time) models.Work {
	w := models.Work{
		ID:        search.ProductID,
		ProductID: search.ProductID,
		Title:     search.Title,
		Circle:    search.Circle,
		Category:  search.Category,
		WorkURL:   search.WorkURL,

		ThumbnailURL: search.ThumbnailURL,
		SalesCount:   search.SalesCount,
		AgeRating:    search.AgeRating,
		IsExclusive:  search.IsExclusive,
		SampleImages: search.SampleImages,

		Price:  mergePrice(search, info),
		Rating: mergeRating(search, info, detail),

		UpdatedAt:     now,
		LastFetchedAt: now,
	}

	if existing != nil {
		w.CreatedAt = existing.CreatedAt
		w.DataSources = existing.DataSources
		w.HighResImageURL = existing.HighResImageURL
		w.Translation = existing.Translation
	} else {
		w.CreatedAt = now
	}

	// creator roles: every source unions in; the search "author" column is
	// the voice credit at lowest priority
	w.VoiceActors = unionRoles(infoNames(info, roleVoice), detailRole(detail, roleVoice), search.Author, existingRole(existing, roleVoice))
	w.Scenario = unionRoles(infoNames(info, roleScenario), detailRole(detail, roleScenario), nil, existingRole(existing, roleScenario))
	w.Illustration = unionRoles(infoNames(info, roleIllust), detailRole(detail, roleIllust), nil, existingRole(existing, roleIllust))
	w.Music = unionRoles(infoNames(info, roleMusic), detailRole(detail, roleMusic), nil, existingRole(existing, roleMusic))
	w.Author = unionRoles(infoNames(info, roleAuthor), detailRole(detail, roleAuthor), nil, existingRole(existing, roleAuthor))

	// genres: catalog classification from detail outline + info endpoint
	var detailGenres, detailTags []string
	if detail != nil {
		detailGenres = detail.Genres
		detailTags = detail.DetailTags
	}
	w.Genres = unionRoles(detailGenres, infoGenres(info), nil, existingField(existing, func(e *models.Work) []string { return e.Genres }))
	w.Tags = unionRoles(search.Tags, detailTags, nil, existingField(existing, func(e *models.Work) []string { return e.Tags }))

	w.DataSources.SearchResult = &models.SourceStamp{LastFetchedAt: now}

	if detail != nil {
		if detail.Description != "" {
			w.Description = detail.Description
		} else if existing != nil {
			w.Description = existing.Description
		}
		if detail.SeriesName != "" {
			w.SeriesName = detail.SeriesName
		}
		if detail.AgeRating != "" {
			w.AgeRating = detail.AgeRating
		}
		w.WorkFormat = detail.WorkFormat
		w.FileFormat = detail.FileFormat
		w.FileInfo = detail.FileInfo
		w.BonusContent = detail.BonusContent
		if detail.HighResImageURL != "" {
			w.HighResImageURL = detail.HighResImageURL
		}
		w.ReleaseDate = detail.ReleaseDate
		w.DataSources.DetailPage = &models.SourceStamp{LastFetchedAt: now}
	} else if existing != nil {
		w.Description = existing.Description
		w.SeriesName = existing.SeriesName
		w.WorkFormat = existing.WorkFormat
		w.FileFormat = existing.FileFormat
		w.FileInfo = existing.FileInfo
		w.BonusContent = existing.BonusContent
		w.ReleaseDate = existing.ReleaseDate
	}

	if info != nil {
		if w.ReleaseDate == "" && info.RegistDate != "" {
			w.ReleaseDate = info.RegistDate
		}
		if w.SeriesName == "" && info.Title != nil {
			w.SeriesName = info.Title.TitleName
		}
		if w.FileFormat == "" {
			w.FileFormat = info.FileType
		}
		if w.SalesCount == nil && info.DLCount > 0 {
			n := info.DLCount
			w.SalesCount = &n
		}
		if info.WishlistCount > 0 {
			n := info.WishlistCount
			w.WishlistCount = &n
		}
		if t := infoTranslation(info); t != nil {
			w.Translation = t
		}
		w.DataSources.InfoAPI = &models.SourceStamp{LastFetchedAt: now}
	}

	if iso := toISODate(w.ReleaseDate); iso != "" {
		w.ReleaseDateISO = iso
	}
	if w.AgeRating == "" && existing != nil {
		w.AgeRating = existing.AgeRating
	}

	return w
}

// price: the info endpoint's locale price wins over the page scrape
func mergePrice(search RawSearchItem, info *InfoResponse) models.Price {
	p := models.Price{
		Current:  search.CurrentPrice,
		Original: search.OriginalPrice,
		Currency: "JPY",
		Discount: search.Discount,
		Point:    search.Point,
	}

	if info != nil {
		if v, ok := info.LocalePrice["ja_JP"]; ok && v > 0 {
			p.Current = v
		} else if info.Price > 0 {
			p.Current = info.Price
		}
		if p.Original == nil && info.OfficialPrice > p.Current {
			v := info.OfficialPrice
			p.Original = &v
		}
	}
	return p
}

// rating priority: detail page precise decimal > info averages > search stars
func mergeRating(search RawSearchItem, info *InfoResponse, detail *DetailPageData) *models.Rating {
	if detail != nil && detail.DetailedStars != nil {
		r := &models.Rating{
			Stars:          *detail.DetailedStars,
			AverageDecimal: detail.DetailedStars,
		}
		switch {
		case detail.DetailedRatingCount != nil:
			r.Count = *detail.DetailedRatingCount
		case info != nil && info.RateCount > 0:
			r.Count = info.RateCount
		case search.RatingCount != nil:
			r.Count = *search.RatingCount
		}
		r.ReviewCount = reviewCount(search, info)
		r.Detail = ratingDetail(info)
		return r
	}

	if info != nil && info.RateCount > 0 && (info.RateAverage2DP > 0 || info.RateAverageStar > 0) {
		stars := info.RateAverageStar / 10 // 10..50 -> 1.0..5.0
		avg := info.RateAverage2DP
		if avg == 0 {
			avg = stars
		}
		if stars == 0 {
			stars = avg
		}
		return &models.Rating{
			Stars:          stars,
			Count:          info.RateCount,
			ReviewCount:    reviewCount(search, info),
			Detail:         ratingDetail(info),
			AverageDecimal: &avg,
		}
	}

	if search.Stars == nil || *search.Stars == 0 {
		return nil
	}
	r := &models.Rating{Stars: *search.Stars}
	if search.RatingCount != nil {
		r.Count = *search.RatingCount
	}
	r.ReviewCount = search.ReviewCount
	return r
}

func reviewCount(search RawSearchItem, info *InfoResponse) *int {
	if info != nil && info.ReviewCount > 0 {
		n := info.ReviewCount
		return &n
	}
	return search.ReviewCount
}

func ratingDetail(info *InfoResponse) []models.RatingBucket {
	if info == nil || len(info.RateCountDetail) == 0 {
		return nil
	}
	var out []models.RatingBucket
	for star := 5; star >= 1; star-- {
		if c := info.RateCountDetail[strconv.Itoa(star)]; c > 0 {
			out = append(out, models.RatingBucket{ReviewPoint: star, Count: c})
		}
	}
	return out
}

type role int

const (
	roleVoice role = iota
	roleScenario
	roleIllust
	roleMusic
	roleAuthor
)

func infoNames(info *InfoResponse, r role) []string {
	if info == nil || info.Creaters == nil {
		return nil
	}
	var creators []InfoCreator
	switch r {
	case roleVoice:
		creators = info.Creaters.VoiceBy
	case roleScenario:
		creators = info.Creaters.ScenarioBy
	case roleIllust:
		creators = info.Creaters.IllustBy
	case roleMusic:
		creators = info.Creaters.MusicBy
	case roleAuthor:
		creators = info.Creaters.OtherBy
	}
	var names []string
	for _, c := range creators {
		if c.Name != "" {
			names = appendIfMissing(names, c.Name)
		}
	}
	return names
}

func detailRole(detail *DetailPageData, r role) []string {
	if detail == nil {
		return nil
	}
	switch r {
	case roleVoice:
		return detail.VoiceActors
	case roleScenario:
		return detail.Scenario
	case roleIllust:
		return detail.Illustration
	case roleMusic:
		return detail.Music
	case roleAuthor:
		return detail.Author
	}
	return nil
}

func existingRole(existing *models.Work, r role) []string {
	if existing == nil {
		return nil
	}
	switch r {
	case roleVoice:
		return existing.VoiceActors
	case roleScenario:
		return existing.Scenario
	case roleIllust:
		return existing.Illustration
	case roleMusic:
		return existing.Music
	case roleAuthor:
		return existing.Author
	}
	return nil
}

func existingField(existing *models.Work, pick func(*models.Work) []string) []string {
	if existing == nil {
		return nil
	}
	return pick(existing)
}

func infoGenres(info *InfoResponse) []string {
	if info == nil {
		return nil
	}
	var out []string
	for _, g := range info.Genres {
		if g.Name != "" {
			out = appendIfMissing(out, g.Name)
		}
	}
	return out
}

func infoTranslation(info *InfoResponse) *models.Translation {
	ti := info.TranslationInfo
	if ti == nil {
		return nil
	}
	if !ti.IsOriginal && !ti.IsChild && ti.OriginalWorkno == "" && ti.ParentWorkno == "" && ti.Lang == "" {
		return nil
	}
	return &models.Translation{
		IsOriginal:     ti.IsOriginal,
		IsChild:        ti.IsChild,
		OriginalWorkID: ti.OriginalWorkno,
		ParentWorkID:   ti.ParentWorkno,
		Lang:           ti.Lang,
	}
}

func unionRoles(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		for _, v := range g {
			out = appendIfMissing(out, v)
		}
	}
	return out
}

// toISODate normalizes "2024年3月15日" or an already dashed date to
// YYYY-MM-DD; anything else yields "".
func toISODate(s string) string {
	if s == "" {
		return ""
	}
	if m := jpDateRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%04d-%02d-%02d", y, mo, d)
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// Validate reports data-quality warnings for a merged work. Warnings never
// block persistence; they exist for logs and monitoring.
func Validate(w models.Work) []string {
	var warnings []string

	if w.Title == "" {
		warnings = append(warnings, "title is empty")
	}
	if w.Circle == "" {
		warnings = append(warnings, "circle is empty")
	}
	if w.Price.Current < 0 {
		warnings = append(warnings, "price is negative")
	}
	if w.Price.Original != nil && *w.Price.Original <= w.Price.Current {
		warnings = append(warnings, "original price not above current")
	}
	if w.Price.Discount != nil && (*w.Price.Discount < 0 || *w.Price.Discount > 100) {
		warnings = append(warnings, "discount out of range")
	}
	if w.Rating != nil {
		if w.Rating.Stars < 0 || w.Rating.Stars > 5 {
			warnings = append(warnings, "rating stars out of range")
		}
		if w.Rating.Count < 0 {
			warnings = append(warnings, "rating count negative")
		}
	}
	if _, err := url.ParseRequestURI(w.WorkURL); err != nil {
		warnings = append(warnings, "work url invalid")
	}
	if _, err := url.ParseRequestURI(w.ThumbnailURL); err != nil {
		warnings = append(warnings, "thumbnail url invalid")
	}

	return warnings
}
