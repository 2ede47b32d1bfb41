package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"framelens/internal/infra"
	"framelens/internal/sqlinline"
)

// statements lists every DDL statement in apply order.
var statements = []string{
	sqlinline.QCreateAnalysesTable,
	sqlinline.QCreateAnalysesCreatedAtIndex,
	sqlinline.QCreateIntegrationTokensTable,
}

func main() {
	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "schema").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	for _, stmt := range statements {
		if _, err := runner.Exec(ctx, stmt); err != nil {
			fmt.Fprintf(os.Stderr, "failed to apply schema: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("schema applied")
}
