/*
main.go - pointsctl, the points engine admin CLI

PURPOSE:
  A small command-line client for the points engine HTTP API. Intended
  for administrators: granting points, managing people and catalog
  items, and inspecting the leaderboard from a terminal.

USAGE:
  pointsctl --server http://localhost:8080 --token SECRET grant 3 50 -n "code review"
  pointsctl leaderboard
  pointsctl items
  pointsctl person add "Ada Lovelace"
  pointsctl item add "Sticker pack" 25 -d "Assorted robot stickers"
  pointsctl redeem 3 1
  pointsctl transactions 3

The server address defaults to POINTS_SERVER (or localhost:8080) and
the token to POINTS_ADMIN_TOKEN, so flags are only needed to override.
*/
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	adminToken string
)

var rootCmd = &cobra.Command{
	Use:   "pointsctl",
	Short: "Admin CLI for the points engine",
	Long: `pointsctl talks to a running points engine server over HTTP.
Mutating commands (grant, redeem, person add, item add) require the
admin token; leaderboard and items are public.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "server base URL (default $POINTS_SERVER or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", "", "admin bearer token (default $POINTS_ADMIN_TOKEN)")

	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(redeemCmd)
	rootCmd.AddCommand(transactionsCmd)
	rootCmd.AddCommand(personCmd)
	rootCmd.AddCommand(itemCmd)

	personCmd.AddCommand(personAddCmd)
	itemCmd.AddCommand(itemAddCmd)

	grantCmd.Flags().StringP("note", "n", "", "Note to attach to the grant")
	itemAddCmd.Flags().StringP("description", "d", "", "Item description")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ─── leaderboard ────────────────────────────────────────────────────────────

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the points leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		var entries []struct {
			ID      int64  `json:"id"`
			Name    string `json:"name"`
			Balance int64  `json:"balance"`
			Share   string `json:"share"`
		}
		if err := apiGet("/api/people", &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stdout, "No people yet.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%-6s %-30s %10s %8s\n", "ID", "NAME", "BALANCE", "SHARE")
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "%-6d %-30s %10d %7s%%\n", e.ID, e.Name, e.Balance, e.Share)
		}
		return nil
	},
}

// ─── items ──────────────────────────────────────────────────────────────────

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List the redemption catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		var items []struct {
			ID          int64  `json:"id"`
			Name        string `json:"name"`
			Cost        int64  `json:"cost"`
			Description string `json:"description,omitempty"`
		}
		if err := apiGet("/api/items", &items); err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stdout, "Catalog is empty.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%-6s %-30s %8s  %s\n", "ID", "NAME", "COST", "DESCRIPTION")
		for _, it := range items {
			fmt.Fprintf(os.Stdout, "%-6d %-30s %8d  %s\n", it.ID, it.Name, it.Cost, it.Description)
		}
		return nil
	},
}

// ─── grant ──────────────────────────────────────────────────────────────────

var grantCmd = &cobra.Command{
	Use:   "grant PERSON_ID AMOUNT",
	Short: "Grant (or correct) points for a person",
	Long: `Grant points to a person. AMOUNT may be negative to issue a
correction; it must not be zero.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		personID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid person id %q", args[0])
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[1])
		}
		note, _ := cmd.Flags().GetString("note")

		var person struct {
			ID      int64  `json:"id"`
			Name    string `json:"name"`
			Balance int64  `json:"balance"`
		}
		err = apiPost("/api/points/grant", map[string]any{
			"person_id": personID,
			"amount":    amount,
			"note":      note,
		}, &person)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Granted %+d to %s; balance is now %d.\n", amount, person.Name, person.Balance)
		return nil
	},
}

// ─── redeem ─────────────────────────────────────────────────────────────────

var redeemCmd = &cobra.Command{
	Use:   "redeem PERSON_ID ITEM_ID",
	Short: "Redeem a catalog item on behalf of a person",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		personID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid person id %q", args[0])
		}
		itemID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id %q", args[1])
		}

		var person struct {
			ID      int64  `json:"id"`
			Name    string `json:"name"`
			Balance int64  `json:"balance"`
		}
		err = apiPost("/api/points/redeem", map[string]any{
			"person_id": personID,
			"item_id":   itemID,
		}, &person)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Redeemed; %s now has %d points.\n", person.Name, person.Balance)
		return nil
	},
}

// ─── transactions ───────────────────────────────────────────────────────────

var transactionsCmd = &cobra.Command{
	Use:   "transactions PERSON_ID",
	Short: "Show a person's transaction history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		personID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid person id %q", args[0])
		}

		var txs []struct {
			ID        int64  `json:"id"`
			Amount    int64  `json:"amount"`
			Kind      string `json:"kind"`
			Note      string `json:"note,omitempty"`
			CreatedAt string `json:"created_at"`
		}
		if err := apiGet(fmt.Sprintf("/api/people/%d/transactions", personID), &txs); err != nil {
			return err
		}
		if len(txs) == 0 {
			fmt.Fprintln(os.Stdout, "No transactions.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%-6s %8s %-8s %-25s %s\n", "ID", "AMOUNT", "KIND", "WHEN", "NOTE")
		for _, tx := range txs {
			when := tx.CreatedAt
			if t, err := time.Parse(time.RFC3339Nano, tx.CreatedAt); err == nil {
				when = t.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(os.Stdout, "%-6d %+8d %-8s %-25s %s\n", tx.ID, tx.Amount, tx.Kind, when, tx.Note)
		}
		return nil
	},
}

// ─── person ─────────────────────────────────────────────────────────────────

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Manage people",
}

var personAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a new person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var person struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		if err := apiPost("/api/people", map[string]any{"name": args[0]}, &person); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Created person %q with id %d.\n", person.Name, person.ID)
		return nil
	},
}

// ─── item ───────────────────────────────────────────────────────────────────

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage catalog items",
}

var itemAddCmd = &cobra.Command{
	Use:   "add NAME COST",
	Short: "Add a catalog item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cost, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid cost %q", args[1])
		}
		description, _ := cmd.Flags().GetString("description")

		var item struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
			Cost int64  `json:"cost"`
		}
		err = apiPost("/api/items", map[string]any{
			"name":        args[0],
			"cost":        cost,
			"description": description,
		}, &item)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Created item %q (cost %d) with id %d.\n", item.Name, item.Cost, item.ID)
		return nil
	},
}

// ─── HTTP client helpers ────────────────────────────────────────────────────

func baseURL() string {
	if serverAddr != "" {
		return serverAddr
	}
	if env := os.Getenv("POINTS_SERVER"); env != "" {
		return env
	}
	return "http://localhost:8080"
}

func token() string {
	if adminToken != "" {
		return adminToken
	}
	return os.Getenv("POINTS_ADMIN_TOKEN")
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

func apiGet(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, baseURL()+path, nil)
	if err != nil {
		return err
	}
	return doRequest(req, out)
}

func apiPost(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, baseURL()+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req, out)
}

func doRequest(req *http.Request, out any) error {
	if tok := token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", baseURL(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
