// Package main is the entry point for the betstream relay.
package main

import (
	"log"
	"os"

	"betstream-relay/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	application, err := app.New()
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	defer application.Shutdown()

	if err := application.Run(); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}
