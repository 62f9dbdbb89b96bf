package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/modqueue/modq/pkg/client"
)

const defaultAPIUrl = "http://127.0.0.1:8080/api"

type command struct{}

func apiClient(f APIFlags) *client.Client {
	url := f.APIUrl
	if url == "" {
		url = defaultAPIUrl
	}
	return client.New(client.Config{BaseURL: url, Timeout: f.APITimeout})
}

func requireDaemon(ctx context.Context, c *client.Client) error {
	if !c.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - start it first with 'modq serve'")
	}
	return nil
}

// Pending lists the daemon's current snapshot of pending posts.
func (command) Pending(f APIFlags) error {
	ctx := context.Background()
	c := apiClient(f)
	if err := requireDaemon(ctx, c); err != nil {
		return err
	}
	resp, err := c.Pending(ctx)
	if err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

// Poll triggers an immediate poll cycle and prints the fresh snapshot.
func (command) Poll(f APIFlags) error {
	ctx := context.Background()
	c := apiClient(f)
	if err := requireDaemon(ctx, c); err != nil {
		return err
	}
	resp, err := c.Poll(ctx)
	if err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

// Decide submits a verdict for a ref printed by pending/poll.
func (command) Decide(f DecideFlags) error {
	ctx := context.Background()
	c := apiClient(f.APIFlags)
	if err := requireDaemon(ctx, c); err != nil {
		return err
	}
	resp, err := c.Decide(ctx, f.Ref, f.Verdict)
	if err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

// Status prints the daemon health document.
func (command) Status(f APIFlags) error {
	ctx := context.Background()
	c := apiClient(f)
	health, err := c.Health(ctx)
	if err != nil {
		return err
	}
	printJSON(health)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
