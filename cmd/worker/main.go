package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"creditcontrol/internal/engine"
	"creditcontrol/pkg/config"
)

// The worker drains the accrual command queue and executes each command
// against the API. Running accrual through the API keeps all pool state in
// one process; the queue buffers commands and requeues failures.

var (
	apiBaseURL     string
	serviceAddress string
	httpClient     = &http.Client{Timeout: 30 * time.Second}
)

func main() {
	// Initialize logger
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	apiBaseURL = os.Getenv("API_BASE_URL")
	if apiBaseURL == "" {
		apiBaseURL = "http://localhost:8080"
	}
	serviceAddress = os.Getenv("SERVICE_ADDRESS")
	if serviceAddress == "" {
		log.Fatal("SERVICE_ADDRESS must be set")
	}

	// Initialize RabbitMQ
	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()

	// Optionally drop any backlog before consuming, e.g. after the scheduler
	// ran against a stopped worker for a long stretch.
	if os.Getenv("PURGE_QUEUE_ON_START") == "true" {
		if err := config.PurgeQueue(engine.QueueAccrualCommands); err != nil {
			log.Fatal("Failed to purge accrual queue: ", err)
		}
	}

	msgConsumer, err := config.NewConsumer(engine.QueueAccrualCommands)
	if err != nil {
		log.Fatal("Failed to create consumer: ", err)
	}
	defer msgConsumer.Close()

	log.Info("Accrual worker started, waiting for commands...")

	err = msgConsumer.Consume(func(msg []byte) error {
		var command engine.AccrualCommand
		if err := json.Unmarshal(msg, &command); err != nil {
			log.Errorf("Failed to unmarshal accrual command: %v", err)
			return err
		}
		if !command.Due() {
			log.WithField("token", command.Token).Debug("Skipping accrual command with no elapsed interval")
			return nil
		}
		return accrue(command)
	})
	if err != nil {
		log.Fatal("Failed to start consumer: ", err)
	}
}

func accrue(command engine.AccrualCommand) error {
	url := fmt.Sprintf("%s/credit-lines/%s/accrue", apiBaseURL, command.Token)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Caller-Address", serviceAddress)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("accrual for %s failed with status %d: %s", command.Token, resp.StatusCode, string(body))
	}

	log.WithFields(log.Fields{
		"token":    command.Token,
		"response": string(body),
	}).Info("Accrued interest")
	return nil
}
