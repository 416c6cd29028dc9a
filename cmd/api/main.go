package main

import (
	"log"

	"github.com/modelgate/credential-engine/internal/config"
	"github.com/modelgate/credential-engine/internal/server"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	// Load environment files explicitly
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	cfg, err := config.LoadFromFile("config.yaml")
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	engine := server.New(cfg)

	log.Println("Starting credential engine server...")
	if err := engine.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
