// File: cmd/demo/main.go
//
// Exercises the realtime client against a running server: mints a channel
// token, opens the user channel, submits a job in a conversation and waits
// for its terminal event.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"collab-realtime/internal/config"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/infra/logging"
	"collab-realtime/internal/realtime"
	"collab-realtime/internal/realtime/wire"
)

func main() {
	serverURL := flag.String("server", "http://127.0.0.1:8080", "server base URL")
	userID := flag.String("user", "demo-user", "user id")
	conversationID := flag.String("conversation", "demo-conv", "conversation id")
	query := flag.String("query", "Summarize the latest team activity.", "query to submit")
	flag.Parse()

	logger := logging.New(config.LogConfig{Level: "debug", Format: "console"}, true)

	token, err := fetchToken(*serverURL, *userID)
	if err != nil {
		log.Fatalf("channel token: %v", err)
	}

	api := realtime.NewHTTPJobAPI(*serverURL+"/api/v1", token)
	dialer := realtime.NewWSDialer(wsBase(*serverURL), token)

	client := realtime.NewClient(*userID, api, dialer, config.DefaultDelivery(), realtime.UserHandlers{
		OnNotification: func(f *wire.Frame) {
			if f.Message != nil {
				fmt.Printf("! message in %s from %s: %s\n", f.Message.RoomID, f.Message.SenderID, f.Message.Content)
			}
		},
		OnPresence: func(uid string, status model.PresenceStatus) {
			fmt.Printf("* %s is %s\n", uid, status)
		},
	}, logger)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	_ = client.Presence.Publish(model.PresenceOnline, "running the demo")

	client.Guard.SetActive(*conversationID)

	jobID, err := client.Jobs.Submit(ctx, *query, "demo-session", *conversationID)
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	fmt.Printf("submitted job %s\n", jobID)

	done := make(chan realtime.TerminalEvent, 1)
	sub := client.Jobs.Subscribe(jobID, func(ev realtime.TerminalEvent) { done <- ev })
	defer sub.Cancel()

	select {
	case ev := <-done:
		if ev.Err != nil {
			fmt.Printf("delivery error: %v\n", ev.Err)
			os.Exit(1)
		}
		fmt.Printf("job %s: status=%s\n", jobID, ev.Job.Status)
		if ev.Job.Result != "" {
			fmt.Println(ev.Job.Result)
		}
		if ev.Job.LastError != "" {
			fmt.Println("error:", ev.Job.LastError)
		}
	case <-ctx.Done():
		fmt.Println("timed out waiting for terminal event")
		os.Exit(1)
	}
}

func fetchToken(serverURL, userID string) (string, error) {
	resp, err := http.Get(serverURL + "/api/v1/auth/channel-token?user_id=" + userID)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Token, nil
}

func wsBase(serverURL string) string {
	return strings.NewReplacer("http://", "ws://", "https://", "wss://").Replace(serverURL)
}
