package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "delete":
		handleDelete(args)
	case "erase":
		handleErase(args)
	case "price":
		handlePrice(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`staybook - lifecycle administration

Usage:
  staybook delete -type <entity-type> -id <id> [-reason <text>]
  staybook erase -user <id> [-reason <text>]
  staybook price -property <id> [-viewer <user-id>]
  staybook help

Environment:
  STAYBOOK_API   base URL of the server (default http://localhost:8080)`)
}

func apiBase() string {
	if v := os.Getenv("STAYBOOK_API"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func handleDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	entityType := fs.String("type", "", "entity type (user, landlord_profile, property, ...)")
	id := fs.String("id", "", "entity ID")
	reason := fs.String("reason", "cli request", "reason recorded in the audit trail")
	fs.Parse(args)

	if *entityType == "" || *id == "" {
		fmt.Println("Error: type and id are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{"reason": *reason})
	url := fmt.Sprintf("%s/api/entities/%s/%s", apiBase(), *entityType, *id)

	req, err := http.NewRequest(http.MethodDelete, url, bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s", resp.StatusCode, string(body))
		os.Exit(1)
	}

	var result struct {
		Root struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"root"`
		Deleted map[string]int `json:"deleted"`
		Total   int            `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding response: %v\n", err)
		os.Exit(1)
	}

	if result.Total == 0 {
		fmt.Printf("%s %s was already deleted, nothing to do\n", result.Root.Type, result.Root.ID)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY TYPE\tDELETED")
	for entityType, count := range result.Deleted {
		fmt.Fprintf(w, "%s\t%d\n", entityType, count)
	}
	fmt.Fprintf(w, "total\t%d\n", result.Total)
	w.Flush()
}

func handleErase(args []string) {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	userID := fs.String("user", "", "user ID to depersonalize")
	reason := fs.String("reason", "cli request", "reason recorded in the audit trail")
	fs.Parse(args)

	if *userID == "" {
		fmt.Println("Error: user is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{"reason": *reason})
	url := fmt.Sprintf("%s/api/users/%s/erase", apiBase(), *userID)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s", resp.StatusCode, string(body))
		os.Exit(1)
	}
	fmt.Printf("user %s depersonalized\n", *userID)
}

func handlePrice(args []string) {
	fs := flag.NewFlagSet("price", flag.ExitOnError)
	propertyID := fs.String("property", "", "property ID")
	viewerID := fs.String("viewer", "", "viewer user ID (optional)")
	fs.Parse(args)

	if *propertyID == "" {
		fmt.Println("Error: property is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	url := fmt.Sprintf("%s/api/properties/%s/price", apiBase(), *propertyID)
	if *viewerID != "" {
		url += "?viewer=" + *viewerID
	}

	resp, err := http.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s", resp.StatusCode, string(body))
		os.Exit(1)
	}

	var price struct {
		PropertyID string `json:"property_id"`
		ViewerID   string `json:"viewer_id"`
		Currency   string `json:"currency"`
		BasePrice  string `json:"base_price"`
		FinalPrice string `json:"final_price"`
		DiscountID string `json:"discount_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&price); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding response: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "property\t%s\n", price.PropertyID)
	if price.ViewerID != "" {
		fmt.Fprintf(w, "viewer\t%s\n", price.ViewerID)
	}
	fmt.Fprintf(w, "base\t%s %s\n", price.BasePrice, price.Currency)
	fmt.Fprintf(w, "final\t%s %s\n", price.FinalPrice, price.Currency)
	if price.DiscountID != "" {
		fmt.Fprintf(w, "discount\t%s\n", price.DiscountID)
	}
	w.Flush()
}
