package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Purges prediction audit log rows older than the retention window. The
// cleanup lambda only evicts expired cache entries; the log grows until an
// operator runs this.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go <retention_days>")
		fmt.Println("Example: go run main.go 90")
		os.Exit(1)
	}

	days, err := strconv.Atoi(os.Args[1])
	if err != nil || days < 1 {
		fmt.Printf("Error: retention_days must be a positive integer, got %q\n", os.Args[1])
		os.Exit(1)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Println("Error: DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	cutoff := time.Now().AddDate(0, 0, -days)
	fmt.Printf("Purging prediction log rows older than %s (%d day retention)...\n",
		cutoff.Format(time.RFC3339), days)

	tag, err := pool.Exec(ctx, "DELETE FROM prediction_log WHERE created_at < $1", cutoff)
	if err != nil {
		fmt.Printf("Error purging rows: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Success! Deleted %d rows\n", tag.RowsAffected())
}
