// Package db embeds the SQL migrations and the seed files (assistant
// prompt template and answer schema) shared by the server and the scripts.
package db

import "embed"

// Migrations holds the numbered schema files applied in name order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// SeedFiles holds the assistant prompt template and answer schema.
//
//go:embed seed/*.*
var SeedFiles embed.FS
