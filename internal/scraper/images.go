package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	siteBaseURL  = "https://www.dlsite.com"
	assetHost    = "img.dlsite.jp"
	assetBaseURL = "https://img.dlsite.jp/modpub/images2/work/doujin"
	resizeBase   = "https://img.dlsite.jp/resize/images2/work/doujin"
)

var (
	imageExtRe     = regexp.MustCompile(`(?i)\.(jpg|jpeg|png)$`)
	mainImageIDRe  = regexp.MustCompile(`/([A-Z]{2}\d{6,8})_img_main`)
	numericPartRe  = regexp.MustCompile(`^RJ`)
)

// Resolution records how the high-res image URL was obtained. Method is
// "extracted", "constructed", "fallback" or "failed"; URL is empty only for
// "failed". AttemptedURLs lists every candidate probed, in order.
type Resolution struct {
	URL               string
	Method            string
	AttemptedURLs     []string
	OriginalProductID string
}

// ImageResolver verifies which of the conventional asset URLs actually
// exists. It never fabricates a result: an unverified URL is never returned.
type ImageResolver struct {
	Client *http.Client
	// Probe override for tests; defaults to a HEAD request.
	probe func(ctx context.Context, url string) bool
}

func NewImageResolver() *ImageResolver {
	r := &ImageResolver{Client: &http.Client{Timeout: 5 * time.Second}}
	r.probe = r.headProbe
	return r
}

// imageDirectory computes the asset directory for an id. The numeric part
// rounds up to the next multiple of 1000 keeping the 8 or 6 digit width;
// other widths fall back to first-4-chars + "000".
func imageDirectory(productID string) string {
	numeric := numericPartRe.ReplaceAllString(productID, "")

	if len(numeric) == 8 || len(numeric) == 6 {
		n, err := strconv.Atoi(numeric)
		if err == nil {
			dir := n/1000*1000 + 1000
			return fmt.Sprintf("RJ%0*d", len(numeric), dir)
		}
	}
	if len(productID) >= 4 {
		return productID[:4] + "000"
	}
	return productID + "000"
}

// candidateURLs builds the ordered, deduplicated probe list.
func candidateURLs(productID, extractedURL string) []string {
	var candidates []string
	add := func(u string) {
		for _, c := range candidates {
			if c == u {
				return
			}
		}
		candidates = append(candidates, u)
	}

	if extractedURL != "" {
		add(extractedURL)
		if !strings.Contains(extractedURL, ".webp") {
			if webp := imageExtRe.ReplaceAllString(extractedURL, ".webp"); webp != extractedURL {
				add(webp)
			}
		}
	}

	dir := imageDirectory(productID)
	base := assetBaseURL + "/" + dir + "/" + productID + "_img_main"
	add(base + ".webp")
	add(base + ".jpg")
	add(base + ".jpeg")
	add(base + ".png")

	legacy := resizeBase + "/" + dir + "/" + productID + "_img_main"
	add(legacy + ".jpg")
	add(strings.Replace(legacy+"_240x240.jpg", "_240x240", "", 1))
	add(resizeBase + "/" + dir + "/" + productID + "_img_smp1.jpg")
	add(resizeBase + "/" + dir + "/" + productID + "_img_sam.jpg")

	return candidates
}

// Resolve probes candidates for the given work until one answers 200.
// When everything fails and the extracted URL names a different id (a
// localized edition reusing the original's assets), the original id is
// resolved instead and annotated on the result.
func (r *ImageResolver) Resolve(ctx context.Context, productID, extractedURL string) Resolution {
	res := r.resolveOne(ctx, productID, extractedURL)
	if res.URL != "" {
		return res
	}

	if extractedURL != "" {
		if m := mainImageIDRe.FindStringSubmatch(extractedURL); m != nil && m[1] != productID {
			originalID := m[1]
			log.Printf("[images] %s: retrying against original work %s", productID, originalID)
			orig := r.resolveOne(ctx, originalID, extractedURL)
			orig.OriginalProductID = originalID
			orig.AttemptedURLs = append(res.AttemptedURLs, orig.AttemptedURLs...)
			return orig
		}
	}
	return res
}

func (r *ImageResolver) resolveOne(ctx context.Context, productID, extractedURL string) Resolution {
	candidates := candidateURLs(productID, extractedURL)

	for i, candidate := range candidates {
		if !r.probe(ctx, candidate) {
			continue
		}
		return Resolution{
			URL:           candidate,
			Method:        classifyMethod(i, extractedURL, candidate),
			AttemptedURLs: candidates[:i+1],
		}
	}

	log.Printf("[images] %s: WARN no candidate verified (%d attempted)", productID, len(candidates))
	return Resolution{Method: "failed", AttemptedURLs: candidates}
}

func classifyMethod(index int, extractedURL, candidate string) string {
	if index == 0 && extractedURL != "" {
		return "extracted"
	}
	if strings.Contains(candidate, "_img_main.webp") && !strings.Contains(candidate, "/resize/") {
		return "constructed"
	}
	return "fallback"
}

// headProbe treats only a clean 200 as existing. A 403 means the asset is
// there but unusable, so it counts as a miss.
func (r *ImageResolver) headProbe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	setBrowserHeaders(req, siteBaseURL)
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := r.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// normalizeAssetURL resolves protocol-relative and host-relative asset URLs.
func normalizeAssetURL(u string) string {
	switch {
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		return "https://" + assetHost + u
	default:
		return u
	}
}
