package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/presbrey/sircd/irc"
	"github.com/presbrey/sircd/irc/config"
)

func main() {
	configPath := flag.String("config", "", "Configuration file or URL (yaml, toml or json)")
	port := flag.Int("port", 0, "IRC listen port (default 6667)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [PORT]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetFlags(log.Lshortfile | log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// A positional PORT wins over -port, which wins over the config
	if flag.NArg() > 0 {
		p, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			log.Fatalf("Invalid port %q: %v", flag.Arg(0), err)
		}
		*port = p
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("Starting IRC server with the following configuration:")
	log.Printf("IRC bind address: %s", cfg.ListenAddress())
	if cfg.Admin.Enabled {
		log.Printf("Admin bind address: %s", cfg.AdminAddress())
	}
	log.Printf("Debug logging: %v", cfg.Debug)

	server := irc.NewServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Println("Server is running. Press Ctrl+C to stop.")
	<-sigChan
	log.Println("Shutdown signal received, stopping server...")

	if err := server.Stop(); err != nil {
		log.Printf("Error stopping server: %v", err)
	}
	log.Println("Server stopped. Goodbye!")
}
