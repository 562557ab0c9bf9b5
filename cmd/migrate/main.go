package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/damoang/angple-chat/internal/config"
	"github.com/damoang/angple-chat/internal/database"
	"github.com/damoang/angple-chat/internal/migration"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "config file path")
	dryRun := flag.Bool("dry-run", false, "print the DDL without executing it")
	verify := flag.Bool("verify", false, "check stored rows against the chat invariants")
	rollback := flag.Bool("rollback", false, "drop the chat tables")
	verbose := flag.Bool("verbose", false, "verbose SQL logging")
	flag.Parse()

	loaded := config.LoadDotEnv()
	log.Printf("loaded env files: %v", loaded)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := gormlogger.Warn
	if *verbose || *dryRun {
		logLevel = gormlogger.Info
	}

	db, err := database.Open(cfg.Database, logLevel)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get underlying DB: %v", err)
	}
	defer sqlDB.Close()

	switch {
	case *rollback:
		if err := migration.Drop(db); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("[rollback] chat tables dropped")
	case *verify:
		if !runVerify(db) {
			os.Exit(1)
		}
	case *dryRun:
		// DryRun sessions log the statements without executing them
		if err := migration.Run(db.Session(&gorm.Session{DryRun: true})); err != nil {
			log.Fatalf("Dry run failed: %v", err)
		}
	default:
		if err := migration.Run(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Printf("[migrate] %s schema is up to date", cfg.Database.Driver)
	}
}

func defaultConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func runVerify(db *gorm.DB) bool {
	checks, err := migration.Verify(db)
	if err != nil {
		log.Printf("[verify] %v", err)
		return false
	}

	ok := true
	fmt.Println()
	fmt.Println("╔════════════════════════════════╦══════════╦═══════╗")
	fmt.Println("║ Check                          ║   Rows   ║ Match ║")
	fmt.Println("╠════════════════════════════════╬══════════╬═══════╣")
	for _, c := range checks {
		match := "✓"
		if !c.OK() {
			match = "✗"
			ok = false
		}
		fmt.Printf("║ %-30s ║ %8d ║   %s   ║\n", c.Label, c.Count, match)
	}
	fmt.Println("╚════════════════════════════════╩══════════╩═══════╝")
	fmt.Println()
	return ok
}
