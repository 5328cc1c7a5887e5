package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"daon/internal/domain"
	"daon/internal/license"
	"daon/internal/usecase"

	"github.com/gin-gonic/gin"
)

// Floor for webhooks created without retry settings and without a
// populated config; a zero max_retries would fail deliveries on the
// first attempt.
const (
	fallbackWebhookMaxRetries = 5
	fallbackWebhookRetryDelay = 30 * time.Second
)

// DetectionLog serves the per-record detection history endpoint.
type DetectionLog interface {
	ListByMatchedRecord(ctx context.Context, hash string) ([]domain.DetectionEvent, error)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// ContentHash carries the existing record's hash on duplicate
	// rejections so a caller can resolve the authoritative record.
	ContentHash string `json:"content_hash,omitempty"`
}

type registerRequest struct {
	Content         string            `json:"content"`
	Creator         string            `json:"creator"`
	License         string            `json:"license"`
	PreviousVersion string            `json:"previous_version,omitempty"`
	Platform        string            `json:"platform,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type recordResponse struct {
	ContentHash     string            `json:"content_hash"`
	NormalizedHash  string            `json:"normalized_hash"`
	PerceptualHash  string            `json:"perceptual_hash"`
	Owner           string            `json:"owner"`
	Creator         string            `json:"creator"`
	License         string            `json:"license"`
	PreviousVersion string            `json:"previous_version,omitempty"`
	Platform        string            `json:"platform,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Transfers       []transferEntry   `json:"transfers,omitempty"`
	Anchor          *anchorResponse   `json:"anchor,omitempty"`
	CreatedAt       string            `json:"created_at"`
}

type transferEntry struct {
	FromOwner string `json:"from_owner"`
	ToOwner   string `json:"to_owner"`
	At        string `json:"at"`
}

type anchorResponse struct {
	TxReference string `json:"tx_reference"`
	Height      int64  `json:"height"`
	AnchoredAt  string `json:"anchored_at"`
}

type registerResponse struct {
	Record  recordResponse   `json:"record"`
	Flagged *flaggedResponse `json:"flagged,omitempty"`
}

type flaggedResponse struct {
	Level       string `json:"level"`
	MatchedHash string `json:"matched_hash"`
	MatchedBy   string `json:"matched_owner"`
}

type transferRequest struct {
	CurrentOwner string `json:"current_owner"`
	NewOwner     string `json:"new_owner"`
}

type lineageResponse struct {
	Records     []recordResponse `json:"records"`
	Truncated   bool             `json:"truncated,omitempty"`
	MissingLink string           `json:"missing_link,omitempty"`
}

type detectionResponse struct {
	ID            string            `json:"id"`
	SubmittedHash string            `json:"submitted_hash"`
	MatchedLevel  string            `json:"matched_level"`
	CallerMeta    map[string]string `json:"caller_meta,omitempty"`
	DetectedAt    string            `json:"detected_at"`
}

type licenseCheckRequest struct {
	ContentHash string             `json:"content_hash"`
	Use         domain.ProposedUse `json:"use"`
}

type licenseCheckResponse struct {
	Allowed bool                     `json:"allowed"`
	Reason  string                   `json:"reason,omitempty"`
	RuleID  string                   `json:"rule_id,omitempty"`
	License string                   `json:"license"`
	Report  *license.ViolationReport `json:"report,omitempty"`
}

type webhookRequest struct {
	EndpointURL       string   `json:"endpoint_url"`
	SigningSecret     string   `json:"signing_secret"`
	SubscribedEvents  []string `json:"subscribed_events"`
	Enabled           *bool    `json:"enabled,omitempty"`
	MaxRetries        int      `json:"max_retries,omitempty"`
	RetryDelaySeconds int      `json:"retry_delay_seconds,omitempty"`
}

type webhookResponse struct {
	ID                string   `json:"id"`
	EndpointURL       string   `json:"endpoint_url"`
	SubscribedEvents  []string `json:"subscribed_events"`
	Enabled           bool     `json:"enabled"`
	MaxRetries        int      `json:"max_retries"`
	RetryDelaySeconds int      `json:"retry_delay_seconds"`
	CreatedAt         string   `json:"created_at"`
}

type deliveryResponse struct {
	ID             string `json:"id"`
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	Status         string `json:"status"`
	AttemptCount   int    `json:"attempt_count"`
	NextRetryAt    string `json:"next_retry_at,omitempty"`
	LastHTTPStatus int    `json:"last_http_status,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func (s *Server) handleRegisterContent(c *gin.Context) {
	if !s.enforceRateLimit(c, "content:register") {
		return
	}
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	res, err := s.registerUC.Execute(c.Request.Context(), usecase.RegisterContentRequest{
		Content:         req.Content,
		Creator:         req.Creator,
		License:         req.License,
		PreviousVersion: req.PreviousVersion,
		Platform:        req.Platform,
		Metadata:        req.Metadata,
		CallerMeta: map[string]string{
			"platform":  req.Platform,
			"remote_ip": c.ClientIP(),
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	out := registerResponse{Record: buildRecordResponse(res.Record)}
	if res.Flagged != nil {
		out.Flagged = &flaggedResponse{
			Level:       string(res.Flagged.Level),
			MatchedHash: res.Flagged.Record.ContentHash,
			MatchedBy:   res.Flagged.Record.Owner,
		}
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) handleGetContent(c *gin.Context) {
	if !s.enforceRateLimit(c, "content:verify") {
		return
	}
	record, err := s.verifyUC.Execute(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildRecordResponse(record))
}

func (s *Server) handleLineage(c *gin.Context) {
	if !s.enforceRateLimit(c, "content:lineage") {
		return
	}
	res, err := s.lineageUC.Lineage(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := lineageResponse{
		Truncated:   res.Truncated,
		MissingLink: res.MissingLink,
	}
	for _, rec := range res.Records {
		out.Records = append(out.Records, buildRecordResponse(rec))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDetections(c *gin.Context) {
	if !s.enforceRateLimit(c, "content:detections") {
		return
	}
	hash := c.Param("hash")
	if _, err := s.records.GetByHash(c.Request.Context(), hash); err != nil {
		writeError(c, err)
		return
	}
	events, err := s.detections.ListByMatchedRecord(c.Request.Context(), hash)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]detectionResponse, 0, len(events))
	for _, e := range events {
		out = append(out, detectionResponse{
			ID:            e.ID,
			SubmittedHash: e.SubmittedHash,
			MatchedLevel:  string(e.MatchedLevel),
			CallerMeta:    e.CallerMeta,
			DetectedAt:    e.DetectedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"detections": out})
}

func (s *Server) handleTransfer(c *gin.Context) {
	if !s.enforceRateLimit(c, "content:transfer") {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	record, err := s.transferUC.Execute(c.Request.Context(), c.Param("hash"), req.CurrentOwner, req.NewOwner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildRecordResponse(record))
}

func (s *Server) handleLicenseCheck(c *gin.Context) {
	if !s.enforceRateLimit(c, "license:check") {
		return
	}
	var req licenseCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	record, err := s.records.GetByHash(c.Request.Context(), req.ContentHash)
	if err != nil {
		writeError(c, err)
		return
	}
	eval := s.evaluator.Evaluate(record.License, req.Use)
	out := licenseCheckResponse{
		Allowed: eval.Allowed,
		Reason:  eval.Reason,
		RuleID:  eval.RuleID,
		License: record.License,
	}
	if !eval.Allowed {
		report := license.BuildViolationReport(record, req.Use, eval, time.Now())
		out.Report = &report
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAdminCreateWebhook(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.EndpointURL == "" || len(req.SubscribedEvents) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_WEBHOOK", "endpoint_url and subscribed_events are required")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.WebhookMaxRetries
	}
	if maxRetries <= 0 {
		maxRetries = fallbackWebhookMaxRetries
	}
	retryDelay := time.Duration(req.RetryDelaySeconds) * time.Second
	if retryDelay <= 0 {
		retryDelay = s.cfg.WebhookRetryDelay()
	}
	if retryDelay <= 0 {
		retryDelay = fallbackWebhookRetryDelay
	}
	hook, err := s.webhooks.Create(c.Request.Context(), domain.Webhook{
		EndpointURL:      req.EndpointURL,
		SigningSecret:    req.SigningSecret,
		SubscribedEvents: req.SubscribedEvents,
		Enabled:          enabled,
		MaxRetries:       maxRetries,
		RetryDelay:       retryDelay,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildWebhookResponse(hook))
}

func (s *Server) handleAdminGetWebhook(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	hook, err := s.webhooks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildWebhookResponse(hook))
}

func (s *Server) handleAdminListDeliveries(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if _, err := s.webhooks.Get(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	rows, err := s.deliveries.ListByWebhook(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]deliveryResponse, 0, len(rows))
	for _, d := range rows {
		resp := deliveryResponse{
			ID:             d.ID,
			EventID:        d.EventID,
			EventType:      d.EventType,
			Status:         string(d.Status),
			AttemptCount:   d.AttemptCount,
			LastHTTPStatus: d.LastHTTPStatus,
			LastError:      d.LastError,
			CreatedAt:      d.CreatedAt.UTC().Format(time.RFC3339),
		}
		if d.NextRetryAt != nil {
			resp.NextRetryAt = d.NextRetryAt.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": out})
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	key := c.GetHeader("X-Admin-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

func buildRecordResponse(record domain.ContentRecord) recordResponse {
	out := recordResponse{
		ContentHash:     record.ContentHash,
		NormalizedHash:  record.NormalizedHash,
		PerceptualHash:  record.PerceptualHash,
		Owner:           record.Owner,
		Creator:         record.Creator,
		License:         record.License,
		PreviousVersion: record.PreviousVersion,
		Platform:        record.Platform,
		Metadata:        record.Metadata,
		CreatedAt:       record.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, entry := range record.TransferHistory {
		out.Transfers = append(out.Transfers, transferEntry{
			FromOwner: entry.FromOwner,
			ToOwner:   entry.ToOwner,
			At:        entry.At.UTC().Format(time.RFC3339),
		})
	}
	if record.Anchor != nil {
		out.Anchor = &anchorResponse{
			TxReference: record.Anchor.TxReference,
			Height:      record.Anchor.Height,
			AnchoredAt:  record.Anchor.AnchoredAt.UTC().Format(time.RFC3339),
		}
	}
	return out
}

func buildWebhookResponse(hook domain.Webhook) webhookResponse {
	return webhookResponse{
		ID:                hook.ID,
		EndpointURL:       hook.EndpointURL,
		SubscribedEvents:  hook.SubscribedEvents,
		Enabled:           hook.Enabled,
		MaxRetries:        hook.MaxRetries,
		RetryDelaySeconds: int(hook.RetryDelay / time.Second),
		CreatedAt:         hook.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrContentTooShort):
		status, code = http.StatusBadRequest, "CONTENT_TOO_SHORT"
	case errors.Is(err, domain.ErrContentTooLarge):
		status, code = http.StatusBadRequest, "CONTENT_TOO_LARGE"
	case errors.Is(err, domain.ErrInvalidContentHash):
		status, code = http.StatusBadRequest, "INVALID_CONTENT_HASH"
	case errors.Is(err, domain.ErrInvalidLicense):
		status, code = http.StatusBadRequest, "INVALID_LICENSE"
	case errors.Is(err, domain.ErrDuplicateRejected):
		status, code = http.StatusConflict, "DUPLICATE_CONTENT"
	case errors.Is(err, domain.ErrVersionNotFound):
		status, code = http.StatusBadRequest, "VERSION_NOT_FOUND"
	case errors.Is(err, domain.ErrContentNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrWebhookNotFound):
		status, code = http.StatusNotFound, "WEBHOOK_NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorizedTransfer):
		status, code = http.StatusForbidden, "UNAUTHORIZED_TRANSFER"
	case errors.Is(err, domain.ErrLicenseViolation):
		status, code = http.StatusForbidden, "LICENSE_VIOLATION"
	}
	resp := errorResponse{Code: code, Message: err.Error()}
	var dup *domain.DuplicateError
	if errors.As(err, &dup) {
		resp.ContentHash = dup.ContentHash
	}
	c.JSON(status, resp)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
