package main

import (
	"github.com/joho/godotenv"

	"github.com/MeKo-Tech/folio/cmd/folio/cmd"
)

func main() {
	// FOLIO_* settings may come from a local .env file.
	_ = godotenv.Load()

	cmd.Execute()
}
