package scraper

import (
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dlhub/pkg/models"
)

// Row-header keyword sets mapping outline rows to the five creator roles.
var (
	voiceHeaderRe    = regexp.MustCompile(`声優|CV|ボイス|出演`)
	scenarioHeaderRe = regexp.MustCompile(`シナリオ|脚本|原作|ストーリー`)
	illustHeaderRe   = regexp.MustCompile(`イラスト|絵|原画|キャラクターデザイン`)
	musicHeaderRe    = regexp.MustCompile(`音楽|BGM|効果音|サウンド`)
	authorHeaderRe   = regexp.MustCompile(`作者|著者|作家`)

	bonusHeaderRe = regexp.MustCompile(`特典|おまけ|ボーナス|限定`)

	fileSizeRe   = regexp.MustCompile(`(?i)^([\d.]+)\s*(B|KB|MB|GB|TB)$`)
	hoursRe      = regexp.MustCompile(`(\d+)時間`)
	minutesRe    = regexp.MustCompile(`(\d+)分`)
	secondsRe    = regexp.MustCompile(`(\d+)秒`)
	formatTokRe  = regexp.MustCompile(`(?i)^[A-Z0-9]{2,5}$`)
	formatListRe = regexp.MustCompile(`[、,/\s]+`)

	decimalRatingRe = regexp.MustCompile(`\b([0-5](?:\.\d{1,2})?)\b`)
	ratingSuffixRe  = regexp.MustCompile(`(\d+(?:,\d+)*)\s*件?\s*の評価`)
	thumbSuffixRe   = regexp.MustCompile(`(?i)_\d+x\d+(\.[a-z]+)$`)
)

// The outline row selectors; the site has shipped all three table shapes.
const outlineRowSelector = "#work_outline tr, .work_outline_table tr, table.work_parts_table tr"

// ParseDetailHTML extracts everything a work's own page contributes:
// outline metadata, creator roles, file info, bonus rows, the description,
// the page's own high-res image and the precise decimal rating.
func ParseDetailHTML(html string) DetailPageData {
	var d DetailPageData

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Printf("[parser] invalid detail html: %v", err)
		return d
	}

	parseOutlineRows(doc, &d)
	parseFileInfo(doc, &d)
	parseBonusContent(doc, &d)
	d.Description = extractDescription(doc)
	d.HighResImageURL = extractHighResImage(doc)
	parseDetailedRating(doc, &d)

	return d
}

func parseOutlineRows(doc *goquery.Document, d *DetailPageData) {
	doc.Find(outlineRowSelector).Each(func(_ int, row *goquery.Selection) {
		header := strings.TrimSpace(row.Find("th").Text())
		cell := row.Find("td")
		content := strings.TrimSpace(cell.Text())
		if header == "" || content == "" {
			return
		}

		switch header {
		case "販売日":
			d.ReleaseDate = content
			return
		case "シリーズ名":
			name := strings.TrimSpace(cell.Find("a").Text())
			if name == "" {
				name = content
			}
			d.SeriesName = name
			return
		case "年齢指定":
			d.AgeRating = firstNonEmpty(
				cell.Find("span").AttrOr("title", ""),
				strings.TrimSpace(cell.Find("span").Text()),
				cell.Find("img").AttrOr("alt", ""),
				content,
			)
			return
		case "作品形式":
			d.WorkFormat = firstNonEmpty(cell.Find("span").AttrOr("title", ""), content)
			return
		case "ファイル形式":
			d.FileFormat = firstNonEmpty(cell.Find("span").AttrOr("title", ""), content)
			return
		case "ジャンル":
			cell.Find("a").Each(func(_ int, a *goquery.Selection) {
				if g := strings.TrimSpace(a.Text()); g != "" {
					d.Genres = appendIfMissing(d.Genres, g)
				}
			})
			return
		}

		// creator rows: linked names first, free text split otherwise
		names := linkedNames(cell)
		if len(names) == 0 {
			names = splitCreatorNames(content)
		}
		if len(names) == 0 {
			return
		}

		switch {
		case voiceHeaderRe.MatchString(header):
			d.VoiceActors = mergeStringSets(d.VoiceActors, names)
		case scenarioHeaderRe.MatchString(header):
			d.Scenario = mergeStringSets(d.Scenario, names)
		case illustHeaderRe.MatchString(header):
			d.Illustration = mergeStringSets(d.Illustration, names)
		case musicHeaderRe.MatchString(header):
			d.Music = mergeStringSets(d.Music, names)
		case authorHeaderRe.MatchString(header):
			d.Author = mergeStringSets(d.Author, names)
		}
	})

	// looser tag links outside the outline table
	doc.Find(".tag_list a, .genre_list a, .work_article .tag a").Each(func(_ int, a *goquery.Selection) {
		t := strings.TrimSpace(a.Text())
		if t == "" || len([]rune(t)) >= 50 {
			return
		}
		if !containsString(d.Genres, t) {
			d.DetailTags = appendIfMissing(d.DetailTags, t)
		}
	})
}

func parseFileInfo(doc *goquery.Document, d *DetailPageData) {
	fi := &models.FileInfo{}

	doc.Find(outlineRowSelector).Each(func(_ int, row *goquery.Selection) {
		header := strings.TrimSpace(row.Find("th").Text())
		content := strings.TrimSpace(row.Find("td").Text())
		if content == "" {
			return
		}

		switch {
		case strings.Contains(header, "ファイル容量") || strings.Contains(header, "総容量"):
			fi.TotalSizeText = content
			fi.TotalSizeBytes = parseFileSizeBytes(content)
		case strings.Contains(header, "再生時間") || strings.Contains(header, "収録時間") || strings.Contains(header, "総時間"):
			fi.TotalDurationText = content
			fi.TotalDurationSec = parseDurationSeconds(content)
		case strings.Contains(header, "ファイル形式") || strings.Contains(header, "音声形式") || strings.Contains(header, "フォーマット"):
			for _, tok := range formatListRe.Split(content, -1) {
				tok = strings.TrimSpace(tok)
				if tok != "" && formatTokRe.MatchString(tok) {
					fi.Formats = appendIfMissing(fi.Formats, strings.ToUpper(tok))
				}
			}
		case strings.Contains(header, "付属") || strings.Contains(header, "同梱") || strings.Contains(header, "追加"):
			for _, f := range creatorSplitRe.Split(content, -1) {
				f = strings.TrimSpace(f)
				if len([]rune(f)) > 1 {
					fi.AdditionalFiles = appendIfMissing(fi.AdditionalFiles, f)
				}
			}
		}
	})

	if fi.TotalSizeText == "" && fi.TotalDurationText == "" &&
		len(fi.Formats) == 0 && len(fi.AdditionalFiles) == 0 {
		return
	}
	d.FileInfo = fi
}

func parseBonusContent(doc *goquery.Document, d *DetailPageData) {
	doc.Find(outlineRowSelector).Each(func(_ int, row *goquery.Selection) {
		header := strings.TrimSpace(row.Find("th").Text())
		content := strings.TrimSpace(row.Find("td").Text())
		if content == "" || !bonusHeaderRe.MatchString(header) {
			return
		}
		d.BonusContent = append(d.BonusContent, models.BonusItem{
			Title:       header,
			Description: content,
			Type:        bonusType(content),
		})
	})
}

func bonusType(content string) string {
	switch {
	case regexp.MustCompile(`画像|イラスト|CG|壁紙`).MatchString(content):
		return "image"
	case regexp.MustCompile(`音声|ボイス|音楽|BGM`).MatchString(content):
		return "audio"
	case regexp.MustCompile(`テキスト|小説|設定資料|台本`).MatchString(content):
		return "text"
	case regexp.MustCompile(`動画|ムービー`).MatchString(content):
		return "video"
	default:
		return "other"
	}
}

// Ranked description selectors; structural areas first, generic last.
var descriptionSelectors = []string{
	".work_parts_area .work_parts",
	".work_parts",
	".product_summary",
	".work_article",
	".work_outline .description",
	".work_outline .summary",
	".work_outline .story",
	".story",
	".description",
	".summary",
	".synopsis",
	"[class*='description']",
	"[class*='summary']",
	"[class*='story']",
}

var invalidDescriptionRes = []*regexp.Regexp{
	regexp.MustCompile(`^[0-9,]+円`),
	regexp.MustCompile(`^[0-9]+MB`),
	regexp.MustCompile(`^[0-9]+分`),
	regexp.MustCompile(`^(MP3|WAV|FLAC|OGG)`),
	regexp.MustCompile(`^(CV|声優)[：:]`),
	regexp.MustCompile(`^(シナリオ|原画|音楽)[：:]`),
	regexp.MustCompile(`^(タグ|ジャンル)[：:]`),
	regexp.MustCompile(`^[0-9]{4}年[0-9]{1,2}月`),
	regexp.MustCompile(`^(ダウンロード|DL)数`),
	regexp.MustCompile(`^★[0-9.]+`),
	regexp.MustCompile(`^(対応OS|動作環境)`),
	regexp.MustCompile(`^(注意|警告|免責)`),
}

var storyPatternRes = []*regexp.Regexp{
	regexp.MustCompile(`あらすじ[:\s]*([^。]+。[^。]*。?)`),
	regexp.MustCompile(`ストーリー[:\s]*([^。]+。[^。]*。?)`),
	regexp.MustCompile(`内容[:\s]*([^。]+。[^。]*。?)`),
	regexp.MustCompile(`概要[:\s]*([^。]+。[^。]*。?)`),
	regexp.MustCompile(`物語[:\s]*([^。]+。[^。]*。?)`),
}

// isPlausibleDescription rejects fragments that are clearly metadata rather
// than prose (prices, sizes, staff rows, bare numbers).
func isPlausibleDescription(text string) bool {
	n := len([]rune(text))
	if n < 10 || n > 5000 {
		return false
	}
	for _, re := range invalidDescriptionRes {
		if re.MatchString(text) {
			return false
		}
	}
	if regexp.MustCompile(`^[0-9\s,]+$`).MatchString(text) {
		return false
	}
	if n >= 30 && !strings.ContainsAny(text, "。！？") {
		return false
	}
	return true
}

func extractDescription(doc *goquery.Document) string {
	for _, sel := range descriptionSelectors {
		best := ""
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if isPlausibleDescription(text) && len(text) > len(best) {
				best = text
			}
		})
		if best != "" {
			return best
		}
	}

	// longest plausible paragraph
	best := ""
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if isPlausibleDescription(text) && len(text) > len(best) {
			best = text
		}
	})
	if best != "" {
		return best
	}

	// shallow divs only: deep containers concatenate the whole page
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 2 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if isPlausibleDescription(text) && len(text) > len(best) {
			best = text
		}
	})
	if best != "" {
		return best
	}

	pageText := doc.Find("body").Text()
	for _, re := range storyPatternRes {
		if m := re.FindStringSubmatch(pageText); m != nil {
			cand := strings.TrimSpace(m[1])
			if isPlausibleDescription(cand) {
				return cand
			}
		}
	}
	return ""
}

// extractHighResImage returns a page-confirmed high-resolution jacket URL,
// or "" when the page shows nothing better than the resolver can construct.
func extractHighResImage(doc *goquery.Document) string {
	mainSelectors := []string{
		"#work_img img",
		".work_img img",
		"img[src*='img_main']",
		".product_image img",
	}
	for _, sel := range mainSelectors {
		img := doc.Find(sel).First()
		if img.Length() == 0 {
			continue
		}
		src := img.AttrOr("src", img.AttrOr("data-src", ""))
		if src != "" {
			return stripThumbSuffix(normalizeAssetURL(src))
		}
	}

	// any asset-host main image anywhere on the page
	found := ""
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := img.AttrOr("src", img.AttrOr("data-src", ""))
		if strings.Contains(src, assetHost) && strings.Contains(src, "_img_main") {
			found = stripThumbSuffix(normalizeAssetURL(src))
			return false
		}
		return true
	})
	return found
}

// stripThumbSuffix drops the _WxH thumbnail marker so the URL points at the
// full-size asset.
func stripThumbSuffix(u string) string {
	return thumbSuffixRe.ReplaceAllString(u, "$1")
}

func parseDetailedRating(doc *goquery.Document, d *DetailPageData) {
	ratingSelectors := []string{
		".work_rating .star_rating",
		".star_rating",
		"[data-rating]",
		"[data-score]",
	}

	for _, sel := range ratingSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if v := firstNonEmpty(el.AttrOr("data-rating", ""), el.AttrOr("data-score", "")); v != "" {
			if r, err := strconv.ParseFloat(v, 64); err == nil && r >= 0 && r <= 5 {
				d.DetailedStars = &r
				break
			}
		}
		if m := starClassRe.FindStringSubmatch(el.AttrOr("class", "")); m != nil {
			n, _ := strconv.Atoi(m[1])
			r := float64(n) / 100 // star_491 -> 4.91
			if r >= 0 && r <= 5 {
				d.DetailedStars = &r
				break
			}
		}
	}

	if d.DetailedStars == nil {
		for _, sel := range []string{".work_rating", ".rating_area", ".star_rating_text"} {
			text := doc.Find(sel).Text()
			if m := decimalRatingRe.FindStringSubmatch(text); m != nil {
				if r, err := strconv.ParseFloat(m[1], 64); err == nil && r >= 0 && r <= 5 {
					d.DetailedStars = &r
					break
				}
			}
		}
	}

	for _, sel := range []string{".work_rating .rating_count", ".star_rating + .count"} {
		if n, ok := extractNumberInParens(doc.Find(sel).Text()); ok {
			d.DetailedRatingCount = &n
			return
		}
	}
	if m := ratingSuffixRe.FindStringSubmatch(doc.Find("body").Text()); m != nil {
		n, _ := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		d.DetailedRatingCount = &n
	}
}

func parseFileSizeBytes(s string) *int64 {
	m := fileSizeRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	mult := map[string]float64{
		"B":  1,
		"KB": 1 << 10,
		"MB": 1 << 20,
		"GB": 1 << 30,
		"TB": 1 << 40,
	}[m[2]]
	b := int64(v*mult + 0.5)
	return &b
}

func parseDurationSeconds(s string) *int {
	total := 0
	if m := hoursRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n * 3600
	}
	if m := minutesRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n * 60
	}
	if m := secondsRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n
	}
	if total == 0 {
		return nil
	}
	return &total
}

func linkedNames(cell *goquery.Selection) []string {
	var names []string
	cell.Find("a").Each(func(_ int, a *goquery.Selection) {
		if n := strings.TrimSpace(a.Text()); n != "" {
			names = appendIfMissing(names, n)
		}
	})
	return names
}

func mergeStringSets(a, b []string) []string {
	for _, v := range b {
		a = appendIfMissing(a, v)
	}
	return a
}

func containsString(slice []string, v string) bool {
	for _, x := range slice {
		if x == v {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
