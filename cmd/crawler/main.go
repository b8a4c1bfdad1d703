package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"dlhub/internal/scraper"
	"dlhub/internal/works"
	"dlhub/pkg/database"
	"dlhub/pkg/utils"
)

func main() {
	// .env is optional; real deployments set DLHUB_* directly
	_ = godotenv.Load()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("shutdown signal received: %s", sig)
		cancel()
	}()

	repo := works.NewRepo(db)
	crawler := scraper.NewCrawler(repo, utils.LoadCrawlConfig())

	sum, err := crawler.Run(ctx)
	if err != nil {
		log.Fatalf("crawl failed: %v", err)
	}
	if sum.Skipped {
		log.Println("another crawl is in progress, nothing to do")
		return
	}

	log.Printf("crawl finished: pages=%d items=%d saved=%d failed=%d completed=%t",
		sum.PagesFetched, sum.ItemsSeen, sum.Saved, sum.Failed, sum.Completed)
}
