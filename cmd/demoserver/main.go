// Command demoserver starts the local launchpad sandbox.
// Usage: go run ./cmd/demoserver [port]
// Default port: 9999. DEMO_API_KEY overrides the mock coin API key.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/coinpilot/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}
	if key := os.Getenv("DEMO_API_KEY"); key != "" {
		cfg.APIKey = key
	}

	fmt.Println("===========================================")
	fmt.Println("   Coinpilot Sandbox Launchpad")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Point coinpilot at this server to rehearse a launch:")
	fmt.Printf("  PUMP_FUN_CREATE_URL=http://localhost:%d/create\n", cfg.Port)
	fmt.Printf("  PUMP_FUN_API_URL=http://localhost:%d\n", cfg.Port)
	fmt.Printf("  PUMP_FUN_API_KEY=%s\n", cfg.APIKey)
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
