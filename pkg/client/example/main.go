package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/xueqianLu/ticketdesk/pkg/client"
)

const baseURL = "http://localhost:8080"

func main() {
	if len(os.Args) < 3 {
		log.Fatalf("usage: %s <keystore.json> <passphrase>", os.Args[0])
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := client.NewClient(baseURL, os.Getenv("TICKETDESK_AUTH_API_KEY"), os.Getenv("TICKETDESK_AUTH_API_SECRET"))

	// print state changes as they happen
	go func() {
		err := c.Events(ctx, func(ev client.Event) error {
			if ev.Type == "state_changed" {
				fmt.Printf("   [%s] %s -> %s\n", ev.AttemptID, ev.From, ev.State)
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("event stream closed: %v", err)
		}
	}()

	// 1. Health Check
	fmt.Println("1. Performing Health Check...")
	health, err := c.Health(ctx)
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	fmt.Printf("   Health status: %s\n", health)

	// 2. Unlock the wallet
	fmt.Println("2. Unlocking wallet...")
	keyJSON, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read key file: %v", err)
	}
	wallet, err := c.Unlock(ctx, keyJSON, os.Args[2])
	if err != nil {
		log.Fatalf("Failed to unlock wallet: %v", err)
	}
	fmt.Printf("   Wallet: %s\n\n", wallet.Address)

	// 3. Balances
	balances, err := c.Balances(ctx, true)
	if err != nil {
		log.Fatalf("Failed to read balances: %v", err)
	}
	fmt.Printf("3. Balance: %s ETH, %s tickets, %s available\n\n", balances.EthBalance, balances.Tickets, balances.Inventory)

	// 4. Quote and buy one ticket
	quote, err := c.Quote(ctx, 1)
	if err != nil {
		log.Fatalf("Failed to get quote: %v", err)
	}
	fmt.Printf("4. Buying 1 ticket for %s ETH...\n", quote.Total)
	attempt, err := c.BuyTickets(ctx, 1)
	if err != nil {
		log.Fatalf("Buy request failed: %v", err)
	}
	fmt.Printf("   %s (%s)\n\n", attempt.Message, attempt.Kind)

	// 5. Redeem it
	fmt.Println("5. Redeeming 1 ticket...")
	attempt, err = c.RedeemTickets(ctx, 1)
	if err != nil {
		log.Fatalf("Redeem request failed: %v", err)
	}
	fmt.Printf("   %s (%s)\n", attempt.Message, attempt.Kind)
}
