package scraper

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"dlhub/pkg/models"
)

// Class-marker to category code map for the table-shaped search results.
var categoryClassMap = map[string]string{
	"type_ADV": "ADV",
	"type_SOU": "SOU",
	"type_RPG": "RPG",
	"type_MOV": "MOV",
	"type_MNG": "MNG",
	"type_GAM": "GAM",
	"type_CG":  "CG",
	"type_TOL": "TOL",
	"type_ET3": "ET3",
	"type_SLN": "SLN",
	"type_ACN": "ACN",
	"type_PZL": "PZL",
	"type_QIZ": "QIZ",
	"type_TBL": "TBL",
	"type_DGT": "DGT",
}

// The list-item shape carries the category as label text instead of a class.
var categoryTextMap = map[string]string{
	"アドベンチャー":   "ADV",
	"ボイス・ASMR":  "SOU",
	"音声作品":      "SOU",
	"アクション":     "ACN",
	"シミュレーション":  "SLN",
	"ロールプレイング":  "RPG",
	"パズル":       "PZL",
	"クイズ":       "QIZ",
	"シューティング":   "STG",
	"タイピング":     "TYP",
	"テーブル":      "TBL",
	"デジタルノベル":   "DNV",
	"CG・イラスト":   "ICG",
	"コミック":      "COM",
	"動画":        "MOV",
	"音楽":        "MUS",
	"ツール/アクセサリ": "TOL",
	"その他ゲーム":    "etc",
}

var (
	productIDRe    = regexp.MustCompile(`/product_id/([^.]+)\.html`)
	groupedNumRe   = regexp.MustCompile(`(\d+(?:,\d+)*)`)
	parenNumRe     = regexp.MustCompile(`\((\d+(?:,\d+)*)\)`)
	starClassRe    = regexp.MustCompile(`star_(\d+)`)
	discountRe     = regexp.MustCompile(`(\d+)%OFF`)
	pointRe        = regexp.MustCompile(`(\d+)pt`)
	creatorSplitRe = regexp.MustCompile(`[/、,\n]+`)
)

// ParseSearchHTML extracts all work rows from a search-result page. The
// table shape is tried first; the list-item shape only when the table
// yields nothing, since AJAX responses never contain both.
func ParseSearchHTML(html string) []RawSearchItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Printf("[parser] invalid html: %v", err)
		return nil
	}

	var items []RawSearchItem

	doc.Find("table.work_1col_table tr").Each(func(i int, row *goquery.Selection) {
		if item, ok := parseTableRow(row, i); ok {
			items = append(items, item)
		}
	})

	if len(items) == 0 {
		doc.Find("#search_result_img_box li[data-list_item_product_id]").Each(func(i int, li *goquery.Selection) {
			if item, ok := parseListItem(li, i); ok {
				items = append(items, item)
			}
		})
	}

	return items
}

// searchEnvelope is the AJAX search response wrapper.
type searchEnvelope struct {
	SearchResult string `json:"search_result"`
	PageInfo     struct {
		Count int `json:"count"`
	} `json:"page_info"`
}

// ParseSearchResultJSON unwraps the AJAX envelope and parses the embedded
// HTML. The returned count is the site's own total for the whole query.
func ParseSearchResultJSON(raw []byte) ([]RawSearchItem, int, error) {
	var env searchEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, fmt.Errorf("decode search envelope: %w", err)
	}
	if env.SearchResult == "" {
		return nil, 0, fmt.Errorf("search envelope has no result html")
	}
	return ParseSearchHTML(env.SearchResult), env.PageInfo.Count, nil
}

// HasNextPage reports whether the pagination block links to the given page.
func HasNextPage(html string, page int) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	found := false
	doc.Find(".page_no a, .global_pagination a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) == strconv.Itoa(page) {
			found = true
			return false
		}
		if href, ok := a.Attr("href"); ok && strings.Contains(href, "/page/"+strconv.Itoa(page)) {
			found = true
			return false
		}
		return true
	})
	return found
}

func parseTableRow(row *goquery.Selection, index int) (RawSearchItem, bool) {
	var item RawSearchItem

	link := row.Find(`a[href*="/product_id/"]`).First()
	if link.Length() == 0 {
		// header or separator row
		return item, false
	}

	href, _ := link.Attr("href")
	m := productIDRe.FindStringSubmatch(href)
	if m == nil {
		log.Printf("[parser] row %d: WARN no product id in href %q", index, href)
		return item, false
	}
	item.ProductID = m[1]

	titleLink := row.Find(`.work_name a[href*="/product_id/"]`).First()
	item.Title = strings.TrimSpace(titleLink.AttrOr("title", ""))
	if item.Title == "" {
		item.Title = strings.TrimSpace(titleLink.Text())
	}
	if item.Title == "" {
		log.Printf("[parser] %s: WARN title missing, row skipped", item.ProductID)
		return item, false
	}

	item.Circle = strings.TrimSpace(row.Find(".maker_name a").First().Text())
	if item.Circle == "" {
		log.Printf("[parser] %s: WARN circle missing, row skipped", item.ProductID)
		return item, false
	}

	item.WorkURL = normalizeURL(href)
	item.Author = extractAuthors(row)
	item.Category = categoryFromClass(row.Find(".work_category"))
	item.ThumbnailURL = extractThumbnail(row, item.ProductID)

	// price block
	current := row.Find(".work_price .work_price_parts").Not(".strike .work_price_parts").Text()
	item.CurrentPrice = extractPriceNumber(current)
	if s := strings.TrimSpace(row.Find(".strike .work_price_parts").Text()); s != "" {
		v := extractPriceNumber(s)
		item.OriginalPrice = &v
	}
	if m := discountRe.FindStringSubmatch(row.Find(".icon_lead_01.type_sale").Text()); m != nil {
		v, _ := strconv.Atoi(m[1])
		item.Discount = &v
	}
	if m := pointRe.FindStringSubmatch(row.Find(".work_point").Text()); m != nil {
		v, _ := strconv.Atoi(m[1])
		item.Point = &v
	}

	// rating block
	if rating := row.Find(".star_rating"); rating.Length() > 0 {
		if m := starClassRe.FindStringSubmatch(rating.AttrOr("class", "")); m != nil {
			n, _ := strconv.Atoi(m[1])
			stars := float64(n) / 10 // star_45 -> 4.5
			item.Stars = &stars
		}
		if n, ok := extractNumberInParens(rating.Text()); ok {
			item.RatingCount = &n
		}
	}
	if review := row.Find(".work_review a"); review.Length() > 0 {
		if n, ok := extractNumberInParens(review.Text()); ok {
			item.ReviewCount = &n
		}
	}

	if sales := row.Find("._dl_count_" + item.ProductID); sales.Length() > 0 {
		v := extractPriceNumber(sales.Text())
		item.SalesCount = &v
	}

	age := row.Find(".icon_GEN, .icon_R15, .icon_R18").First()
	item.AgeRating = strings.TrimSpace(age.AttrOr("title", ""))
	if item.AgeRating == "" {
		item.AgeRating = strings.TrimSpace(age.Text())
	}
	item.IsExclusive = row.Find(".icon_lead_01.type_exclusive").Length() > 0

	row.Find(".search_tag a").Each(func(_ int, a *goquery.Selection) {
		if t := strings.TrimSpace(a.Text()); t != "" {
			item.Tags = appendIfMissing(item.Tags, t)
		}
	})

	if data, ok := row.Find("[data-view_samples]").Attr("data-view_samples"); ok {
		item.SampleImages = parseSampleImages(data)
	}

	return item, true
}

func parseListItem(li *goquery.Selection, index int) (RawSearchItem, bool) {
	var item RawSearchItem

	item.ProductID = li.AttrOr("data-list_item_product_id", "")
	if item.ProductID == "" {
		return item, false
	}

	nameLink := li.Find(".work_name a").First()
	item.Title = strings.TrimSpace(nameLink.AttrOr("title", ""))
	if item.Title == "" {
		item.Title = strings.TrimSpace(nameLink.Text())
	}
	if item.Title == "" {
		log.Printf("[parser] %s: WARN title missing, item skipped", item.ProductID)
		return item, false
	}

	item.Circle = strings.TrimSpace(li.Find(".maker_name a").First().Text())
	if item.Circle == "" {
		log.Printf("[parser] %s: WARN circle missing, item skipped", item.ProductID)
		return item, false
	}

	item.WorkURL = normalizeURL(nameLink.AttrOr("href", ""))
	item.ThumbnailURL = normalizeURL(li.Find("img").First().AttrOr("src", ""))

	catText := strings.TrimSpace(li.Find(".work_category a").Text())
	if code, ok := categoryTextMap[catText]; ok {
		item.Category = code
	} else {
		if catText != "" {
			log.Printf("[parser] %s: WARN unknown category label %q", item.ProductID, catText)
		}
		item.Category = "etc"
	}

	item.CurrentPrice = extractPriceNumber(li.Find(".work_price_base").First().Text())
	if s := strings.TrimSpace(li.Find(".strike .work_price_base").Text()); s != "" {
		v := extractPriceNumber(s)
		item.OriginalPrice = &v
		if v > item.CurrentPrice {
			d := int(float64(v-item.CurrentPrice)/float64(v)*100 + 0.5)
			item.Discount = &d
		}
	}

	if s := strings.TrimSpace(li.Find(".work_dl span").Text()); s != "" {
		v := extractPriceNumber(s)
		item.SalesCount = &v
	}

	if rating := li.Find(".star_rating"); rating.Length() > 0 {
		if m := starClassRe.FindStringSubmatch(rating.AttrOr("class", "")); m != nil {
			n, _ := strconv.Atoi(m[1])
			stars := float64(n) / 10
			item.Stars = &stars
		}
		if n, ok := extractNumberInParens(rating.Text()); ok {
			item.RatingCount = &n
		}
	}

	li.Find(".maker_name .author a").Each(func(_ int, a *goquery.Selection) {
		if name := strings.TrimSpace(a.Text()); name != "" {
			item.Author = append(item.Author, name)
		}
	})

	item.IsExclusive = li.HasClass("type_exclusive_01")
	_ = index
	return item, true
}

// extractAuthors pulls the voice-actor column. Link text sometimes packs
// several names into one anchor, so every value goes through the splitter.
func extractAuthors(row *goquery.Selection) []string {
	var names []string

	links := row.Find(".author a")
	if links.Length() > 0 {
		links.Each(func(_ int, a *goquery.Selection) {
			names = append(names, splitCreatorNames(a.Text())...)
		})
		return names
	}

	return splitCreatorNames(row.Find(".author").Text())
}

// splitCreatorNames breaks a free-text credit on the separators the site
// uses and keeps only plausible names (2 to 49 runes).
func splitCreatorNames(s string) []string {
	var out []string
	for _, part := range creatorSplitRe.Split(s, -1) {
		name := strings.TrimSpace(part)
		n := utf8.RuneCountInString(name)
		if n >= 2 && n < 50 {
			out = appendIfMissing(out, name)
		}
	}
	return out
}

func categoryFromClass(sel *goquery.Selection) string {
	classes := sel.AttrOr("class", "")
	for marker, code := range categoryClassMap {
		if strings.Contains(classes, marker) {
			return code
		}
	}
	return "etc"
}

func extractThumbnail(row *goquery.Selection, productID string) string {
	url := row.Find("img.lazy").AttrOr("src", "")
	if url == "" {
		url = row.Find("img").First().AttrOr("src", "")
	}
	if url == "" {
		url = row.Find("img[data-src]").AttrOr("data-src", "")
	}
	if url == "" {
		// no image in the row; point at the conventional main-image path
		url = assetBaseURL + "/" + imageDirectory(productID) + "/" + productID + "_img_main.webp"
	}
	return normalizeURL(url)
}

func extractPriceNumber(s string) int {
	m := groupedNumRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	return n
}

func extractNumberInParens(s string) (int, bool) {
	m := parenNumRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, _ := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	return n, true
}

func parseSampleImages(data string) []models.SampleImage {
	if strings.TrimSpace(data) == "" {
		return nil
	}

	var raw []struct {
		Thumb  string `json:"thumb"`
		Width  string `json:"width"`
		Height string `json:"height"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		// malformed attribute; the work simply has no usable samples
		log.Printf("[parser] WARN sample image attr unparsable: %v", err)
		return nil
	}

	out := make([]models.SampleImage, 0, len(raw))
	for _, r := range raw {
		img := models.SampleImage{Thumb: normalizeURL(r.Thumb)}
		if v, err := strconv.Atoi(r.Width); err == nil {
			img.Width = &v
		}
		if v, err := strconv.Atoi(r.Height); err == nil {
			img.Height = &v
		}
		out = append(out, img)
	}
	return out
}

// normalizeURL makes protocol-relative and site-relative URLs absolute.
func normalizeURL(u string) string {
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "https://"), strings.HasPrefix(u, "http://"):
		return u
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		return siteBaseURL + u
	default:
		return siteBaseURL + "/" + u
	}
}

func appendIfMissing(slice []string, v string) []string {
	for _, x := range slice {
		if x == v {
			return slice
		}
	}
	return append(slice, v)
}
