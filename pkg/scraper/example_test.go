package scraper_test

import (
	"context"
	"fmt"
	"time"

	"konadl/pkg/booru"
	"konadl/pkg/checkpoint"
	"konadl/pkg/logger"
	"konadl/pkg/scraper"
	"konadl/pkg/stats"
	"konadl/pkg/storage"
)

func ExampleRun() {
	log := logger.NewNopLogger()

	client := booru.NewClient(booru.Options{
		BaseURL: "https://konachan.net",
		Timeout: 10 * time.Second,
		Logger:  log,
	})

	store, err := storage.NewManager("downloads")
	if err != nil {
		fmt.Printf("Failed to prepare output directory: %v\n", err)
		return
	}

	summary, err := scraper.Run(context.Background(), scraper.Options{
		Tags:             "landscape",
		Limit:            100,
		Workers:          5,
		Timeout:          10 * time.Second,
		ItemBudget:       client.ContentBudget(),
		StopAfterSkipped: 5,
		PageDelay:        time.Second,
		Fetcher:          client,
		Storage:          store,
		Progress:         checkpoint.NewStore("progress.json", log),
		Stats:            stats.NewStore("stats.json", log),
		Logger:           log,
	})
	if err != nil {
		fmt.Printf("Failed to persist session: %v\n", err)
		return
	}

	fmt.Printf("Downloaded %d images (%s)\n", summary.Images, summary.StopReason)
}
