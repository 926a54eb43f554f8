package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"SuiCoPilot/sdk/go/suicopilot"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(suicopilot.Session{
			User:        suicopilot.User{ID: "demo-user", Email: "demo@example.com"},
			AccessToken: "demo-token",
			ExpiresAt:   time.Now().Add(time.Hour),
		})
	})
	mux.HandleFunc("/functions/v1/ask-ai", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(suicopilot.AskAIResponse{
			Response: "Objects are the basic unit of storage on Sui.",
			Tokens:   suicopilot.Usage{PromptTokens: 20, CompletionTokens: 11, TotalTokens: 31},
		})
	})
	mux.HandleFunc("/api/v1/transactions/simulate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(suicopilot.TransactionState{
			State:      "simulated",
			CanExecute: true,
			Simulation: &suicopilot.SimulationResult{
				Success:       true,
				Network:       "testnet",
				GasEstimation: suicopilot.GasEstimation{ComputationCost: "1000000", StorageCost: "1976000", StorageRebate: "978120"},
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := suicopilot.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := client.SignIn(ctx, suicopilot.Credentials{Email: "demo@example.com", Password: "secret123"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("signed in as %s\n", session.User.Email)

	answer, err := client.AskAI(ctx, suicopilot.AskAIRequest{Prompt: "What is an object on Sui?"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("assistant: %s (%d tokens)\n", answer.Response, answer.Tokens.TotalTokens)

	client.UseWallet("0x7d20dcdb2bca4f508ea9613994683eb4e76e9c4ed371169677c1be02aaf0b58e", "testnet")
	state, err := client.Simulate(ctx, suicopilot.TransferRequest{Recipient: "0x2", Amount: "0.5"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("simulation state=%s success=%v computation=%s\n", state.State, state.Simulation.Success, state.Simulation.GasEstimation.ComputationCost)
}
