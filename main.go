package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/toolfront/mcp-auth-bridge/cmd"
)

func main() {
	// A .env file is a development convenience, not a requirement.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
