// Command assistant-probe renders the seeded assistant prompt for a sample job,
// sends it to a local Ollama and checks the answer parses and validates.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	dbfs "github.com/garnizeh/fieldops/db"
	"github.com/garnizeh/fieldops/internal/assistant"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/ollama"
	"github.com/qri-io/jsonschema"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:11434", "Ollama base URL")
		model    = flag.String("model", "llama3.1", "model name")
		question = flag.String("q", "The tap in the utility room keeps dripping, what should I check first?", "question to ask")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := ollama.DefaultConfig()
	cfg.BaseURL = *baseURL
	cfg.Model = *model
	client, err := ollama.NewDefaultClient(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	installed, err := client.ListModels(ctx)
	if err != nil {
		log.Fatalf("list models: %v", err)
	}
	for _, m := range installed {
		fmt.Printf("model %s (%d bytes)\n", m.Name, m.Size)
	}

	tmpl, err := dbfs.SeedFiles.ReadFile("seed/assistant_template_v1.txt")
	if err != nil {
		log.Fatal(err)
	}
	schemaJSON, err := dbfs.SeedFiles.ReadFile("seed/assistant_schema_v1.json")
	if err != nil {
		log.Fatal(err)
	}
	var schema jsonschema.Schema
	if err := schema.UnmarshalJSON(schemaJSON); err != nil {
		log.Fatalf("compile schema: %v", err)
	}

	prompt, err := ollama.RenderTemplate(string(tmpl), map[string]any{
		"Job":      sampleJob(),
		"History":  nil,
		"Question": *question,
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(prompt)

	res, err := client.Generate(ctx, "", prompt)
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	answer, raw, err := assistant.ParseAnswer(res.Text)
	if err != nil {
		log.Fatalf("parse answer: %v\n%s", err, res.Text)
	}
	keyErrs, err := schema.ValidateBytes(ctx, []byte(raw))
	if err != nil {
		log.Fatalf("validate: %v", err)
	}
	for _, ke := range keyErrs {
		fmt.Printf("schema: %s\n", ke.Error())
	}
	fmt.Printf("%+v\n", *answer)
}

func sampleJob() models.Job {
	return models.Job{
		Title:    "Kitchen deep clean",
		Status:   models.StatusInProgress,
		Priority: models.PriorityMedium,
		Location: models.Location{Address: "14 Harbour Road"},
		Requirements: []models.Requirement{
			{ID: "r1", Description: "Degrease extractor hood", IsRequired: true},
			{ID: "r2", Description: "Report any leaks"},
		},
	}
}
