package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/crypto"
	"github.com/wso2/abdm-integration-api/internal/dao"
	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/gateway"
	"github.com/wso2/abdm-integration-api/internal/handlers"
	"github.com/wso2/abdm-integration-api/internal/service"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

// application holds the wired components shared by the serve and sweep commands
type application struct {
	db          *database.DB
	gateway     *gateway.Client
	credentials gateway.CredentialResolver

	dispatcher *service.CallbackDispatcher
	sweeper    *service.ExpirySweeper

	consentHandler      *handlers.ConsentHandler
	healthRecordHandler *handlers.HealthRecordHandler
	callbackHandler     *handlers.CallbackHandler

	logger *logrus.Logger
}

func newLogger(cfg *config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger.SetLevel(logrus.InfoLevel)
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func newApplication(cfg *config.Config, logger *logrus.Logger) (*application, error) {
	db, err := database.Open(context.Background(), &cfg.Database.ABDM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	decrypter, err := crypto.NewFromConfig(&cfg.Crypto)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize decrypter: %w", err)
	}

	// Initialize DAOs
	requestDAO := dao.NewConsentRequestDAO(db)
	artifactDAO := dao.NewConsentArtifactDAO(db)
	auditDAO := dao.NewConsentAuditDAO(db)
	fetchDAO := dao.NewFetchRequestDAO(db)
	recordDAO := dao.NewHealthRecordDAO(db)
	logDAO := dao.NewProcessingLogDAO(db)
	accessDAO := dao.NewAccessLogDAO(db)
	inboxDAO := dao.NewCallbackInboxDAO(db)

	logger.Info("DAOs initialized successfully")

	clock := utils.SystemClock{}
	credentials := gateway.NewRefCredentialResolver(cfg.Gateway.CredentialsRef)
	gatewayClient := gateway.NewClient(&cfg.Gateway, &cfg.Callback, credentials, clock, logger)

	// Initialize services
	consentService := service.NewConsentService(requestDAO, artifactDAO, auditDAO, db, gatewayClient, clock, &cfg.Consent,
		cfg.Callback.ConsentCallbackURL(), logger)

	pipeline := service.NewPipeline(recordDAO, logDAO, decrypter, service.NewRecordIndexer(recordDAO, clock), clock, logger)
	fetchService := service.NewFetchService(
		fetchDAO,
		artifactDAO,
		requestDAO,
		auditDAO,
		logDAO,
		db,
		gatewayClient,
		pipeline,
		clock,
		&cfg.Fetch,
		cfg.Callback.HealthInfoCallbackURL(),
		logger,
	)

	recordService := service.NewHealthRecordService(recordDAO, accessDAO, clock, logger)

	dispatcher := service.NewCallbackDispatcher(inboxDAO, consentService, fetchService, &cfg.Callback, clock, logger)
	receiver := service.NewCallbackReceiver(inboxDAO, dispatcher, &cfg.Callback, clock, logger)

	logger.WithFields(logrus.Fields{
		"crypto_scheme":    decrypter.Algorithm(),
		"callback_workers": cfg.Callback.Workers,
	}).Info("Services initialized successfully")

	return &application{
		db:                  db,
		gateway:             gatewayClient,
		credentials:         credentials,
		dispatcher:          dispatcher,
		sweeper:             service.NewExpirySweeper(consentService, fetchService, cfg.Consent.SweepInterval, logger),
		consentHandler:      handlers.NewConsentHandler(consentService),
		healthRecordHandler: handlers.NewHealthRecordHandler(fetchService, recordService),
		callbackHandler:     handlers.NewCallbackHandler(receiver, cfg.Callback.MaxBodyBytes, logger),
		logger:              logger,
	}, nil
}

func (a *application) close() {
	a.gateway.Close()
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Failed to close database")
	}
}
