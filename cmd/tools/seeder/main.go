package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Seeds pending donations, memberships and event registrations so payments can
// be initiated against them locally. Prints each record id for use as referenceId.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedDonations(db)
	seedMemberships(db)
	seedEventRegistrations(db)

	log.Println("Seeding completed successfully!")
}

func seedDonations(db *sql.DB) {
	donations := []struct {
		Name    string
		Email   string
		Amount  string
		Purpose string
	}{
		{"Ram Bahadur Thapa", "ram@example.org", "5000", "Temple restoration"},
		{"Sita Sharma", "sita@example.org", "1500", "Annadaan"},
		{"Hari Prasad Koirala", "hari@example.org", "25000.50", "Gaushala upkeep"},
	}

	fmt.Println("Seeding Donations...")
	for _, d := range donations {
		var id string
		err := db.QueryRow(`
			INSERT INTO donations (donor_name, donor_email, amount, purpose)
			VALUES ($1, $2, $3::numeric, $4)
			RETURNING id;
		`, d.Name, d.Email, d.Amount, d.Purpose).Scan(&id)
		if err != nil {
			log.Printf("Failed to seed donation for %s: %v", d.Email, err)
			continue
		}
		fmt.Printf("  donation %s  NPR %s  %s\n", id, d.Amount, d.Name)
	}
}

func seedMemberships(db *sql.DB) {
	members := []struct {
		Name string
		Type string
		Fee  string
	}{
		{"Gita Adhikari", "Annual", "1500"},
		{"Krishna Bhattarai", "Lifetime", "25000"},
	}

	fmt.Println("Seeding Memberships...")
	for _, m := range members {
		var id string
		err := db.QueryRow(`
			INSERT INTO memberships (member_name, email, membership_type, fee)
			VALUES ($1, lower(replace($1, ' ', '.')) || '@example.org', $2, $3::numeric)
			RETURNING id;
		`, m.Name, m.Type, m.Fee).Scan(&id)
		if err != nil {
			log.Printf("Failed to seed membership for %s: %v", m.Name, err)
			continue
		}
		fmt.Printf("  membership %s  %s  NPR %s  %s\n", id, m.Type, m.Fee, m.Name)
	}
}

func seedEventRegistrations(db *sql.DB) {
	regs := []struct {
		Event string
		Date  string
		Name  string
		Fee   string
	}{
		{"New Year Puja", "2025-04-14", "Maya Gurung", "500"},
		{"Gita Path Saptaha", "2025-08-20", "Bishnu Karki", "1000"},
	}

	fmt.Println("Seeding Event Registrations...")
	for _, r := range regs {
		var id string
		err := db.QueryRow(`
			INSERT INTO event_registrations (event_name, event_date, participant_name, amount)
			VALUES ($1, $2::date, $3, $4::numeric)
			RETURNING id;
		`, r.Event, r.Date, r.Name, r.Fee).Scan(&id)
		if err != nil {
			log.Printf("Failed to seed registration for %s: %v", r.Name, err)
			continue
		}
		fmt.Printf("  event_registration %s  %s  NPR %s  %s\n", id, r.Event, r.Fee, r.Name)
	}
}
