package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"memoir/internal/app"
	"memoir/internal/config"
	"memoir/internal/seed"
)

func main() {
	projectID := flag.String("project", "", "Project to seed (default: a new random id)")
	contributor := flag.String("contributor", "seed-user", "Contributor id recorded on each memory")
	product := flag.String("product", "life_story", "Product whose default projection is created")
	generate := flag.Bool("generate", true, "Generate the projection after seeding")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, closeLog, err := config.NewLogger(cfg, "seed")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer closeLog()

	if *projectID == "" {
		*projectID = uuid.NewString()
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	log.Printf("🌱 Seeding project %s (environment: %s, storage: %s)", *projectID, cfg.Environment, cfg.Storage)

	seeder := seed.NewSeeder(a.Content, a.Narrative, a.Projections, a.Engine, logger)
	result, err := seeder.Seed(ctx, *projectID, *contributor, *product, *generate)
	if result != nil && result.Projection != nil {
		log.Printf("✅ Added %d memories, projection %s", len(result.Items), result.Projection.ID)
	}
	if result != nil && result.Update != nil {
		c := result.Update.Counts
		log.Printf("📝 Generated version %d: %d updated, %d unchanged, %d failed",
			result.Update.Version, c.Updated, c.Unchanged, c.Failed)
	}
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("🎉 Seeding complete!")
}
