package main

import (
	"os"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"creditcontrol/internal/engine"
	"creditcontrol/internal/handlers"
	"creditcontrol/internal/routes"
	"creditcontrol/pkg/amm"
	"creditcontrol/pkg/config"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	// Initialize database
	config.InitDB()

	owner := common.HexToAddress(os.Getenv("OWNER_ADDRESS"))
	service := common.HexToAddress(os.Getenv("SERVICE_ADDRESS"))
	if owner == (common.Address{}) || service == (common.Address{}) {
		log.Fatal("OWNER_ADDRESS and SERVICE_ADDRESS must be set")
	}
	adapterAddr := common.HexToAddress(os.Getenv("ADAPTER_ADDRESS"))
	if adapterAddr == (common.Address{}) {
		adapterAddr = service
	}

	// Initialize RabbitMQ (optional, events are skipped if not configured)
	var publisher *config.Publisher
	if os.Getenv("RABBITMQ_HOST") != "" {
		config.InitRabbitMQ()
		defer func() {
			if config.RabbitMQ != nil {
				config.RabbitMQ.Close()
			}
		}()
		var err error
		publisher, err = config.NewPublisher()
		if err != nil {
			log.Fatal("Failed to create publisher:", err)
		}
		defer publisher.Close()
	} else {
		log.Info("RabbitMQ not configured, skipping initialization")
	}

	stream := amm.NewPriceHub()
	adapterCfg := amm.AdapterConfig{
		DB:     config.DB,
		Client: amm.NewSimPool(),
		Owner:  owner,
		Stream: stream,
	}
	if publisher != nil {
		adapterCfg.Publisher = publisher
	}
	adapter := amm.NewPositionAdapter(adapterCfg)

	// The service identity drives pool creation and rebalancing, so it has to
	// be on the adapter allowlist before any requests come in.
	if err := adapter.SetAuthorizedCaller(owner, service, true); err != nil {
		log.Fatal("Failed to authorize service identity:", err)
	}

	sagaCfg := engine.SagaConfig{
		DB:          config.DB,
		Positions:   adapter,
		AdapterAddr: adapterAddr,
		Self:        service,
	}
	ledgerCfg := engine.LedgerConfig{
		DB:        config.DB,
		Positions: adapter,
		Owner:     owner,
		Self:      service,
	}
	if publisher != nil {
		sagaCfg.Publisher = publisher
		ledgerCfg.Publisher = publisher
	}

	handlers.Init(engine.NewCreationSaga(sagaCfg), engine.NewLedger(ledgerCfg), adapter, stream)

	// Set up router
	r := routes.SetupRouter()

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
