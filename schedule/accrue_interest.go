package main

import (
	"os"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"creditcontrol/internal/engine"
	"creditcontrol/internal/models"
	"creditcontrol/pkg/config"
)

// Publishes an accrual command for every finalized credit line on a fixed
// schedule. The worker executes the commands; this process only enumerates.

const defaultAccrualSpec = "0 * * * *" // hourly

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	config.InitDB()
	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()

	publisher, err := config.NewPublisher()
	if err != nil {
		log.Fatal("Failed to create publisher: ", err)
	}
	defer publisher.Close()

	spec := os.Getenv("ACCRUAL_CRON_SPEC")
	if spec == "" {
		spec = defaultAccrualSpec
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { publishAccrualCommands(publisher) }); err != nil {
		log.Fatal("Failed to schedule accrual job: ", err)
	}

	log.Infof("Accrual scheduler started with spec %q", spec)
	c.Run()
}

func publishAccrualCommands(publisher *config.Publisher) {
	var lines []models.CreditLine
	if err := config.DB.Where("finalized = true").Find(&lines).Error; err != nil {
		log.Errorf("Failed to list credit lines: %v", err)
		return
	}

	now := time.Now()
	published := 0
	for _, line := range lines {
		command := engine.AccrualCommand{
			Token:          line.TokenAddress,
			ElapsedSeconds: int64(now.Sub(line.LastAccrualTime) / time.Second),
		}
		if err := publisher.Publish(engine.QueueAccrualCommands, command); err != nil {
			log.Errorf("Failed to publish accrual command for %s: %v", line.TokenAddress, err)
			continue
		}
		published++
	}
	log.Infof("Published %d accrual commands", published)
}
