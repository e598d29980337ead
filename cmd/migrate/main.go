// Command migrate manages the audit database's schema migrations,
// grounded on the teacher's internal/db/migrate_cli.go subcommand
// dispatcher.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/hypocenter/internal/audit"
)

var dbPath = flag.String("db", "audit.db", "path to the sqlite audit database")

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		printHelp()
		os.Exit(1)
	}

	db, err := audit.Open(*dbPath)
	if err != nil {
		log.Fatalf("opening audit database: %v", err)
	}
	defer db.Close()

	switch args[0] {
	case "up":
		if err := db.MigrateUp(); err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		log.Println("migrations applied")
	case "down":
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		log.Println("last migration rolled back")
	case "version":
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			log.Fatalf("reading migration version: %v", err)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
	case "help":
		printHelp()
	default:
		fmt.Printf("unknown action %q\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`usage: migrate -db <path> <up|down|version|help>`)
}
