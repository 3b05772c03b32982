package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"toolbox/internal/cli"
)

func main() {
	// DISPATCH_* variables may come from a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Fatal Error: Could not load .env file: %v", err)
	}

	cli.Execute()
}
