// Package http exposes the registry over a gin HTTP API: content
// registration and verification, lineage, ownership transfer, license
// compliance checks, and webhook administration.
package http

import (
	"context"
	"net/http"
	"time"

	"daon/internal/config"
	"daon/internal/domain"
	"daon/internal/infra/anchor"
	"daon/internal/infra/db"
	"daon/internal/infra/memstore"
	"daon/internal/infra/ratelimit"
	"daon/internal/infra/webhook"
	"daon/internal/license"
	"daon/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	registerUC *usecase.RegisterContent
	transferUC *usecase.TransferOwnership
	lineageUC  *usecase.LineageQuery
	verifyUC   *usecase.VerifyContent
	records    usecase.ContentLookup
	detections DetectionLog
	evaluator  *license.Evaluator

	webhooks   webhook.WebhookRepository
	deliveries webhook.DeliveryRepository
	dispatcher *webhook.Dispatcher
	anchorSub  *anchor.Submitter

	adminAPIKey string

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

// NewServer wires the full stack from configuration: gorm repositories
// when Postgres is configured, in-memory stores otherwise, the webhook
// dispatcher, and the optional ledger anchor submitter.
func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	s.initDeps()
	s.routes()
	return s
}

// ServerDeps lets tests and callers inject pre-built collaborators.
type ServerDeps struct {
	Register    *usecase.RegisterContent
	Transfer    *usecase.TransferOwnership
	Lineage     *usecase.LineageQuery
	Verify      *usecase.VerifyContent
	Records     usecase.ContentLookup
	Detections  DetectionLog
	Evaluator   *license.Evaluator
	Webhooks    webhook.WebhookRepository
	Deliveries  webhook.DeliveryRepository
	Dispatcher  *webhook.Dispatcher
	AdminAPIKey string
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		r:           r,
		registerUC:  deps.Register,
		transferUC:  deps.Transfer,
		lineageUC:   deps.Lineage,
		verifyUC:    deps.Verify,
		records:     deps.Records,
		detections:  deps.Detections,
		evaluator:   deps.Evaluator,
		webhooks:    deps.Webhooks,
		deliveries:  deps.Deliveries,
		dispatcher:  deps.Dispatcher,
		adminAPIKey: deps.AdminAPIKey,
	}
	if s.evaluator == nil {
		s.evaluator = license.NewEvaluator()
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() {
	s.adminAPIKey = s.cfg.AdminAPIKey
	s.evaluator = license.NewEvaluator()

	var (
		records    usecase.ContentRepository
		detections usecase.DetectionRepository
	)
	if s.store.Available() {
		contentRepo := db.NewContentRepository(s.store.DB)
		detectionRepo := db.NewDetectionRepository(s.store.DB)
		records = contentRepo
		detections = detectionRepo
		s.detections = detectionRepo
		s.webhooks = db.NewWebhookRepository(s.store.DB)
		s.deliveries = db.NewDeliveryRepository(s.store.DB)
	} else {
		contentStore := memstore.NewContentStore()
		detectionStore := memstore.NewDetectionStore()
		records = contentStore
		detections = detectionStore
		s.detections = detectionStore
		s.webhooks = memstore.NewWebhookStore()
		s.deliveries = memstore.NewDeliveryStore()
	}
	s.records = records

	s.dispatcher = webhook.NewDispatcher(s.webhooks, s.deliveries,
		webhook.WithTimeout(s.cfg.WebhookTimeout()),
		webhook.WithScanPeriod(s.cfg.WebhookScanPeriod()),
	)
	events := usecase.NewEventEmitter(s.dispatcher, nil)

	var submitter usecase.AnchorSubmitter
	if s.cfg.AnchorURL != "" {
		if client, err := anchor.NewClient(s.cfg.AnchorURL, nil, s.cfg.AnchorTimeout()); err == nil {
			s.anchorSub = anchor.NewSubmitter(client, records)
			submitter = s.anchorSub
		}
	}

	dupes := usecase.NewDuplicateCheck(records, detections, nil)
	s.registerUC = &usecase.RegisterContent{
		Records:       records,
		Dupes:         dupes,
		Events:        events,
		Anchor:        submitter,
		StrictLineage: s.cfg.StrictLineage,
	}
	s.transferUC = usecase.NewTransferOwnership(records, license.NewTransferPolicyRegistry(), events, nil)
	s.lineageUC = &usecase.LineageQuery{Records: records, MaxDepth: s.cfg.MaxLineageDepth}
	s.verifyUC = usecase.NewVerifyContent(records, events)

	s.initRateLimit(nil)
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(s.cfg.RateLimitMaxKeys, nil)
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store.Available() {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/content", s.handleRegisterContent)
		v1.GET("/content/:hash", s.handleGetContent)
		v1.GET("/content/:hash/lineage", s.handleLineage)
		v1.GET("/content/:hash/detections", s.handleDetections)
		v1.POST("/content/:hash/transfer", s.handleTransfer)
		v1.POST("/license/check", s.handleLicenseCheck)

		v1.POST("/admin/webhooks", s.handleAdminCreateWebhook)
		v1.GET("/admin/webhooks/:id", s.handleAdminGetWebhook)
		v1.GET("/admin/webhooks/:id/deliveries", s.handleAdminListDeliveries)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "unknown route")
	})
}

// StartWorkers launches the webhook dispatcher and the anchor submitter.
// They stop when ctx is cancelled.
func (s *Server) StartWorkers(ctx context.Context) {
	if s.dispatcher != nil {
		go s.dispatcher.Run(ctx)
	}
	if s.anchorSub != nil {
		go s.anchorSub.Run(ctx)
	}
}

func (s *Server) Run() error {
	s.StartWorkers(context.Background())
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.r }
