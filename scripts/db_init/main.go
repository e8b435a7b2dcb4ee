package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garnizeh/fieldops/api"
	dbfs "github.com/garnizeh/fieldops/db"
	"github.com/garnizeh/fieldops/internal/config"
	"github.com/garnizeh/fieldops/internal/db"
	"github.com/garnizeh/fieldops/internal/repository/sqlite"
	"github.com/garnizeh/fieldops/pkg/models"
)

func main() {
	var (
		code = flag.String("staff-code", "", "create a staff member with this code")
		pin  = flag.String("pin", "", "PIN for the new staff member")
		name = flag.String("name", "", "display name for the new staff member")
		demo = flag.Bool("demo", false, "assign a few demo jobs to the new staff member")
	)
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	// run migrations and seed using internal/db.Migrate
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Migration runner error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Database initialized successfully.")

	if *code == "" {
		return
	}
	if *pin == "" {
		fmt.Fprintln(os.Stderr, "-pin is required with -staff-code")
		os.Exit(1)
	}

	repo := sqlite.New(database, nil)
	hash, err := api.HashPIN(*pin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hash PIN error: %v\n", err)
		os.Exit(1)
	}
	staffID, err := repo.CreateStaff(ctx, &models.Staff{StaffCode: *code, Name: *name, PINHash: hash, Active: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Create staff error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Staff %s created with id %s.\n", *code, staffID)

	if !*demo {
		return
	}
	for _, j := range demoJobs(staffID) {
		id, err := repo.CreateJob(ctx, &j)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Create job error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Job %q assigned (%s).\n", j.Title, id)
	}
}

func demoJobs(staffID string) []models.Job {
	tomorrow := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	return []models.Job{
		{
			Title:       "Office end-of-tenancy clean",
			Description: "Two floors, kitchenette and washrooms.",
			Priority:    models.PriorityHigh,
			Location: models.Location{
				Address:     "1 Canada Square, London",
				Coordinates: &models.Coordinates{Latitude: 51.5049, Longitude: -0.0195},
			},
			Requirements: []models.Requirement{
				{ID: "keys", Description: "Collect keys from reception", IsRequired: true},
				{ID: "bins", Description: "Empty all bins", IsRequired: true},
				{ID: "windows", Description: "Internal windows"},
			},
			BookingDetails: &models.BookingDetails{CustomerName: "Northwind Ltd", ContactPhone: "+44 20 7946 0000", EstimatedMinutes: 240},
			AssignedTo:     staffID,
			ScheduledFor:   &tomorrow,
		},
		{
			Title:    "Boiler pressure check",
			Priority: models.PriorityMedium,
			Location: models.Location{
				Address:     "22 Baker Street, London",
				Coordinates: &models.Coordinates{Latitude: 51.5205, Longitude: -0.1566},
			},
			Requirements: []models.Requirement{
				{ID: "gas", Description: "Confirm gas supply is isolated", IsRequired: true},
			},
			AssignedTo: staffID,
		},
	}
}
