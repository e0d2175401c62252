package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"surveydesk/m/internal/api"
	"surveydesk/m/internal/assignment"
	"surveydesk/m/internal/cache"
	"surveydesk/m/internal/config"
	"surveydesk/m/internal/database"
	"surveydesk/m/internal/migrations"
	"surveydesk/m/internal/report"
	"surveydesk/m/internal/sales"
	"surveydesk/m/internal/upstream"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)

	client := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)
	store := cache.New(db, client, cfg.CacheMaxAge)
	drafts := sales.NewComposer(client)
	reconciler := assignment.New(client)

	renderer, err := report.NewRenderer("templates")
	if err != nil {
		log.Fatalf("unable to load report templates: %v", err)
	}
	printer := report.NewPrinter(cfg.ReportBaseURL)

	handler := api.New(client, store, drafts, reconciler, renderer, printer, cfg.Secret)

	log.Printf("SurveyDesk console starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
