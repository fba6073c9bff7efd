// Command smoke submits a sample task to a running Pagesmith instance and
// prints the result. It exercises the full path: generation, publishing,
// Pages enablement and convergence polling.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Base URL of the Pagesmith server")
	task := flag.String("task", "smoke-test", "Task name")
	round := flag.Int("round", 1, "Round number (1 or 2)")
	nonce := flag.String("nonce", fmt.Sprintf("%x", time.Now().Unix()), "Repository nonce")
	brief := flag.String("brief", "Build a single-page site that says hello.", "Task brief")
	email := flag.String("email", "smoke@taskforge.dev", "Submitter email")
	flag.Parse()

	secret := os.Getenv("SECRET")
	if secret == "" {
		log.Fatal("SECRET environment variable is required")
	}

	payload := map[string]interface{}{
		"email":  *email,
		"secret": secret,
		"task":   *task,
		"round":  *round,
		"nonce":  *nonce,
		"brief":  *brief,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("Failed to marshal task: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	log.Printf("Submitting task %s-%s (round %d) to %s", *task, *nonce, *round, *server)

	resp, err := client.Post(*server+"/handle_task", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		log.Fatalf("Server returned %d: %s", resp.StatusCode, respBody)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		fmt.Println(string(respBody))
		return
	}

	log.Printf("✓ Task handled (%d)", resp.StatusCode)
	fmt.Println(pretty.String())
}
