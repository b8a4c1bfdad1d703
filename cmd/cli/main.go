package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dlhub/pkg/models"
)

const defaultBaseURL = "http://localhost:8080"

type workListResponse struct {
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Items  []models.Work `json:"items"`
}

func main() {
	global := flag.NewFlagSet("dlhub", flag.ExitOnError)
	baseURL := global.String("api", defaultBaseURL, "API base URL")
	if err := global.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := args[0]
	sub := ""
	if len(args) > 1 {
		sub = args[1]
	}

	client := &http.Client{Timeout: 15 * time.Second}

	switch cmd {
	case "works":
		handleWorks(ctx, client, *baseURL, sub, args[2:])
	case "crawl":
		handleCrawl(ctx, client, *baseURL, sub)
	case "export":
		handleExport(ctx, client, *baseURL, sub, args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleWorks(ctx context.Context, client *http.Client, baseURL, sub string, args []string) {
	switch sub {
	case "search":
		fs := flag.NewFlagSet("works search", flag.ExitOnError)
		query := fs.String("q", "", "keyword in title or circle")
		category := fs.String("category", "", "category code filter (SOU, RPG, ...)")
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "offset")
		_ = fs.Parse(args)

		u, err := url.Parse(baseURL + "/api/works")
		if err != nil {
			log.Fatalf("invalid base url: %v", err)
		}
		qv := u.Query()
		if *query != "" {
			qv.Set("q", *query)
		}
		if *category != "" {
			qv.Set("category", *category)
		}
		qv.Set("limit", fmt.Sprintf("%d", *limit))
		qv.Set("offset", fmt.Sprintf("%d", *offset))
		u.RawQuery = qv.Encode()

		var resp workListResponse
		if err := doJSON(ctx, client, u.String(), &resp); err != nil {
			log.Fatalf("search failed: %v", err)
		}
		printJSON(resp)
	case "show":
		fs := flag.NewFlagSet("works show", flag.ExitOnError)
		id := fs.String("id", "", "work id (RJ...)")
		_ = fs.Parse(args)
		if *id == "" {
			log.Fatal("work id is required")
		}

		var resp models.Work
		if err := doJSON(ctx, client, baseURL+"/api/works/"+url.PathEscape(*id), &resp); err != nil {
			log.Fatalf("show failed: %v", err)
		}
		printJSON(resp)
	default:
		log.Fatal("usage: dlhub works <search|show>")
	}
}

func handleCrawl(ctx context.Context, client *http.Client, baseURL, sub string) {
	switch sub {
	case "status":
		var resp map[string]any
		if err := doJSON(ctx, client, baseURL+"/api/crawl/status", &resp); err != nil {
			log.Fatalf("status failed: %v", err)
		}
		printJSON(resp)
	case "progress":
		var resp models.CollectionProgress
		if err := doJSON(ctx, client, baseURL+"/api/crawl/progress", &resp); err != nil {
			log.Fatalf("progress failed: %v", err)
		}
		printJSON(resp)
	default:
		log.Fatal("usage: dlhub crawl <status|progress>")
	}
}

func handleExport(ctx context.Context, client *http.Client, baseURL, sub string, args []string) {
	switch sub {
	case "json":
		fs := flag.NewFlagSet("export json", flag.ExitOnError)
		out := fs.String("out", "data/works.json", "output JSON path")
		limit := fs.Int("limit", 500, "max works to export")
		_ = fs.Parse(args)

		items, err := fetchWorks(ctx, client, baseURL, *limit)
		if err != nil {
			log.Fatalf("export json failed: %v", err)
		}
		if err := writeJSON(*out, items); err != nil {
			log.Fatalf("write json failed: %v", err)
		}
		log.Printf("exported %d works to %s", len(items), *out)
	case "csv":
		fs := flag.NewFlagSet("export csv", flag.ExitOnError)
		out := fs.String("out", "data/works.csv", "output CSV path")
		limit := fs.Int("limit", 500, "max works to export")
		_ = fs.Parse(args)

		items, err := fetchWorks(ctx, client, baseURL, *limit)
		if err != nil {
			log.Fatalf("export csv failed: %v", err)
		}
		if err := writeCSV(*out, items); err != nil {
			log.Fatalf("write csv failed: %v", err)
		}
		log.Printf("exported %d works to %s", len(items), *out)
	default:
		log.Fatal("usage: dlhub export <json|csv>")
	}
}

func fetchWorks(ctx context.Context, client *http.Client, baseURL string, limit int) ([]models.Work, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	var out []models.Work
	offset := 0
	for len(out) < limit {
		pageSize := 100
		if remaining := limit - len(out); remaining < pageSize {
			pageSize = remaining
		}
		u, err := url.Parse(baseURL + "/api/works")
		if err != nil {
			return nil, err
		}
		qv := u.Query()
		qv.Set("limit", fmt.Sprintf("%d", pageSize))
		qv.Set("offset", fmt.Sprintf("%d", offset))
		u.RawQuery = qv.Encode()

		var resp workListResponse
		if err := doJSON(ctx, client, u.String(), &resp); err != nil {
			return nil, err
		}
		if len(resp.Items) == 0 {
			break
		}
		out = append(out, resp.Items...)
		offset += len(resp.Items)
		if offset >= resp.Total {
			break
		}
	}

	return out, nil
}

func writeJSON(path string, items []models.Work) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeCSV(path string, items []models.Work) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		"id", "title", "circle", "category", "price", "release_date", "age_rating", "genres", "work_url",
	}); err != nil {
		return err
	}
	for _, item := range items {
		if err := writer.Write([]string{
			item.ID,
			item.Title,
			item.Circle,
			item.Category,
			fmt.Sprintf("%d", item.Price.Current),
			item.ReleaseDateISO,
			item.AgeRating,
			strings.Join(item.Genres, ","),
			item.WorkURL,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func doJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s failed: %s", endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("json: %v", err)
	}
	fmt.Println(string(b))
}

func printUsage() {
	fmt.Println("dlhub <command> [subcommand] [flags]")
	fmt.Println("commands:")
	fmt.Println("  works search|show")
	fmt.Println("  crawl status|progress")
	fmt.Println("  export json|csv")
}
