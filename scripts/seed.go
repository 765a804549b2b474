package main

import (
	"context"
	"log"
	"os"

	"github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/postgres"
	"github.com/styleatlas/catalog-annotation/pkg/config"
)

// Development seeder: a small catalog (one subclass, restricted and
// free-form attributes), two AI providers and a ready-to-submit batch.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()
	db := pgClient.DB()

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, truncating tables before seeding")
		_, err := db.ExecContext(ctx, `
			TRUNCATE TABLE
				tbl_product_annotations,
				tbl_ai_provider_failure_log,
				tbl_ai_processing_run,
				tbl_batch_assignment_item,
				tbl_batch_assignment,
				tbl_batch_item,
				tbl_annotation_batch,
				tbl_ai_provider,
				tbl_attribute_option,
				tbl_attribute_subclass_map,
				tbl_attribute_master,
				tbl_product_image,
				tbl_product_color,
				tbl_base_product
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			log.Fatalf("Failed to reset tables: %v", err)
		}
	}

	// 1. Attributes for subclass 1 (Knit Tops): two restricted, one free-form
	attributes := []struct {
		name        string
		description string
		options     []string
	}{
		{"Color Family", "Dominant color family of the garment", []string{"Black", "White", "Blue", "Red", "Green", "Neutral", "Multi"}},
		{"Sleeve Length", "Sleeve length category", []string{"Sleeveless", "Short Sleeve", "3/4 Sleeve", "Long Sleeve"}},
		{"Material", "Primary fabric composition as described", nil},
	}

	for _, a := range attributes {
		var attributeID int64
		err := db.QueryRowContext(ctx, `
			INSERT INTO tbl_attribute_master (attribute_name, description, is_active, created_at, updated_at)
			VALUES ($1, $2, TRUE, NOW(), NOW())
			RETURNING id`,
			a.name, a.description,
		).Scan(&attributeID)
		if err != nil {
			log.Fatalf("Failed to create attribute %s: %v", a.name, err)
		}

		if _, err := db.ExecContext(ctx, `
			INSERT INTO tbl_attribute_subclass_map (attribute_id, subclass_id, created_at)
			VALUES ($1, 1, NOW())`,
			attributeID,
		); err != nil {
			log.Fatalf("Failed to map attribute %s to subclass: %v", a.name, err)
		}

		for _, option := range a.options {
			if _, err := db.ExecContext(ctx, `
				INSERT INTO tbl_attribute_option (attribute_id, option_value, is_active, created_at)
				VALUES ($1, $2, TRUE, NOW())`,
				attributeID, option,
			); err != nil {
				log.Fatalf("Failed to create option %s for %s: %v", option, a.name, err)
			}
		}
	}

	// 2. AI providers. Keys come from the environment so this file stays
	// committable.
	providers := []struct {
		name    string
		service string
		model   string
		config  string
	}{
		{"OpenAI GPT-4o", "openai", "gpt-4o", `{"api_key": "` + os.Getenv("SEED_OPENAI_API_KEY") + `", "max_threads": 10, "max_retries": 3, "max_tokens": 500, "temperature": 0.1}`},
		{"Claude Sonnet", "anthropic", "claude-sonnet-4-5", `{"api_key": "` + os.Getenv("SEED_ANTHROPIC_API_KEY") + `", "max_threads": 5, "max_retries": 3, "max_tokens": 500, "temperature": 0.1}`},
	}

	providerIDs := make([]int64, 0, len(providers))
	for _, p := range providers {
		var providerID int64
		err := db.QueryRowContext(ctx, `
			INSERT INTO tbl_ai_provider (name, service_name, model_name, is_active, config, created_at)
			VALUES ($1, $2, $3, TRUE, $4, NOW())
			RETURNING id`,
			p.name, p.service, p.model, p.config,
		).Scan(&providerID)
		if err != nil {
			log.Fatalf("Failed to create provider %s: %v", p.name, err)
		}
		providerIDs = append(providerIDs, providerID)
	}

	// 3. Products with a primary image each
	products := []struct {
		styleID     string
		description string
		imageURL    string
	}{
		{"KT-1001", "Ribbed crew neck tee in organic cotton", "https://images.styleatlas.dev/kt-1001-front.jpg"},
		{"KT-1002", "Oversized long sleeve waffle knit top", "https://images.styleatlas.dev/kt-1002-front.jpg"},
		{"KT-1003", "Sleeveless mock neck knit tank", "https://images.styleatlas.dev/kt-1003-front.jpg"},
		{"KT-1004", "Cropped short sleeve pointelle top", "https://images.styleatlas.dev/kt-1004-front.jpg"},
	}

	productIDs := make([]int64, 0, len(products))
	for _, p := range products {
		var productID int64
		err := db.QueryRowContext(ctx, `
			INSERT INTO tbl_base_product
				(style_id, style_desc, style_description, dept_name, subdept_name,
				 class_name, subclass_name, subclass_id, processing_status, created_at, updated_at)
			VALUES ($1, $2, $2, 'Womens', 'Tops', 'Knits', 'Knit Tops', 1, 'pending_ai', NOW(), NOW())
			RETURNING id`,
			p.styleID, p.description,
		).Scan(&productID)
		if err != nil {
			log.Fatalf("Failed to create product %s: %v", p.styleID, err)
		}
		productIDs = append(productIDs, productID)

		var colorID int64
		err = db.QueryRowContext(ctx, `
			INSERT INTO tbl_product_color (product_id, created_at)
			VALUES ($1, NOW())
			RETURNING id`,
			productID,
		).Scan(&colorID)
		if err != nil {
			log.Fatalf("Failed to create color for %s: %v", p.styleID, err)
		}

		if _, err := db.ExecContext(ctx, `
			INSERT INTO tbl_product_image (color_id, image_url, created_at)
			VALUES ($1, $2, NOW())`,
			colorID, p.imageURL,
		); err != nil {
			log.Fatalf("Failed to create image for %s: %v", p.styleID, err)
		}
	}

	// 4. A batch over all seeded products with one assignment per provider
	var batchID int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO tbl_annotation_batch (name, description, batch_size, batch_type, created_at, updated_at)
		VALUES ('Dev knit tops batch', 'Seeded development batch', $1, 'ai', NOW(), NOW())
		RETURNING id`,
		len(productIDs),
	).Scan(&batchID)
	if err != nil {
		log.Fatalf("Failed to create batch: %v", err)
	}

	batchItemIDs := make([]int64, 0, len(productIDs))
	for _, productID := range productIDs {
		var batchItemID int64
		err := db.QueryRowContext(ctx, `
			INSERT INTO tbl_batch_item (batch_id, product_id, created_at)
			VALUES ($1, $2, NOW())
			RETURNING id`,
			batchID, productID,
		).Scan(&batchItemID)
		if err != nil {
			log.Fatalf("Failed to create batch item for product %d: %v", productID, err)
		}
		batchItemIDs = append(batchItemIDs, batchItemID)
	}

	for _, providerID := range providerIDs {
		var assignmentID int64
		err := db.QueryRowContext(ctx, `
			INSERT INTO tbl_batch_assignment (batch_id, assignment_type, assignment_id, status, progress, created_at, updated_at)
			VALUES ($1, 'ai', $2, 'pending', 0, NOW(), NOW())
			RETURNING id`,
			batchID, providerID,
		).Scan(&assignmentID)
		if err != nil {
			log.Fatalf("Failed to create assignment for provider %d: %v", providerID, err)
		}

		for _, batchItemID := range batchItemIDs {
			if _, err := db.ExecContext(ctx, `
				INSERT INTO tbl_batch_assignment_item (assignment_id, batch_item_id, status, created_at, updated_at)
				VALUES ($1, $2, 'pending_ai', NOW(), NOW())`,
				assignmentID, batchItemID,
			); err != nil {
				log.Fatalf("Failed to create assignment item: %v", err)
			}
		}
	}

	log.Printf("Seeding completed: batch %d with %d products across %d providers", batchID, len(productIDs), len(providerIDs))
}
