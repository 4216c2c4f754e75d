package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	redisclient "github.com/mementolink/mementolink-backend/internal/clients/redis"
	"github.com/mementolink/mementolink-backend/internal/http/response"
	"github.com/mementolink/mementolink-backend/internal/platform/ctxutil"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/repos"
	"github.com/mementolink/mementolink-backend/internal/services"
	"github.com/mementolink/mementolink-backend/internal/types"
)

type ClaimHandler struct {
	log          *logger.Logger
	intake       services.ClaimIntakeService
	verifier     services.ClaimVerifier
	authService  services.AuthService
	provisioner  services.ProvisioningEngine
	reconciler   services.ClaimReconciler
	notifier     services.NotificationDispatcher
	claims       repos.ClaimRequestRepo
	sessions     redisclient.SessionStore
	loginBaseURL string
}

func NewClaimHandler(
	baseLog *logger.Logger,
	intake services.ClaimIntakeService,
	verifier services.ClaimVerifier,
	authService services.AuthService,
	provisioner services.ProvisioningEngine,
	reconciler services.ClaimReconciler,
	notifier services.NotificationDispatcher,
	claims repos.ClaimRequestRepo,
	sessions redisclient.SessionStore,
	loginBaseURL string,
) *ClaimHandler {
	return &ClaimHandler{
		log:          baseLog.With("handler", "ClaimHandler"),
		intake:       intake,
		verifier:     verifier,
		authService:  authService,
		provisioner:  provisioner,
		reconciler:   reconciler,
		notifier:     notifier,
		claims:       claims,
		sessions:     sessions,
		loginBaseURL: strings.TrimRight(loginBaseURL, "/"),
	}
}

func (ch *ClaimHandler) Submit(c *gin.Context) {
	var req struct {
		Email          string  `json:"email"`
		Tenant         string  `json:"tenant"`
		LpID           string  `json:"lp_id"`
		Product        string  `json:"product"`
		ProductType    string  `json:"product_type"`
		OrderID        string  `json:"order_id"`
		RecaptchaScore float64 `json:"recaptcha_score"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := ch.intake.Submit(c.Request.Context(), services.IntakeInput{
		Email:          req.Email,
		Tenant:         req.Tenant,
		LpID:           req.LpID,
		Product:        req.Product,
		ProductType:    req.ProductType,
		OrderID:        req.OrderID,
		Origin:         c.GetHeader("Origin"),
		IP:             c.ClientIP(),
		UA:             c.Request.UserAgent(),
		RecaptchaScore: req.RecaptchaScore,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"claim_request_id": result.ClaimRequestID,
		"status":           result.Status,
		"email_delivered":  result.Email.Delivered,
	})
}

// Verify validates a claim link and opens an editing session. The token
// never goes into the session; only the identity it proved.
func (ch *ClaimHandler) Verify(c *gin.Context) {
	token := c.Query("token")
	result, err := ch.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	payload := gin.H{
		"claim_request_id": result.ClaimRequest.ID,
		"email":            result.ClaimRequest.Email,
		"tenant":           result.ClaimRequest.Tenant,
		"status":           result.ClaimRequest.Status,
		"degraded":         result.Degraded,
	}
	if ch.sessions != nil {
		sessionID := uuid.New().String()
		err := ch.sessions.Save(c.Request.Context(), sessionID, redisclient.SessionRecord{
			ClaimRequestID: result.ClaimRequest.ID,
			Email:          result.ClaimRequest.Email,
			Tenant:         result.ClaimRequest.Tenant,
			CreatedAt:      time.Now(),
		})
		if err != nil {
			ch.log.Warn("session save failed", "error", err)
		} else {
			payload["session_id"] = sessionID
		}
	}
	response.RespondOK(c, payload)
}

// SetPassword turns a verified claim into a claimant account. Identity is
// proved either by the claim token or by the session opened at Verify time;
// the session is consumed on success.
func (ch *ClaimHandler) SetPassword(c *gin.Context) {
	var req struct {
		Token     string `json:"token"`
		SessionID string `json:"session_id"`
		Password  string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	var email, tenant string
	switch {
	case req.Token != "":
		result, err := ch.verifier.Verify(c.Request.Context(), req.Token)
		if err != nil {
			response.RespondAPIError(c, err)
			return
		}
		email, tenant = result.ClaimRequest.Email, result.ClaimRequest.Tenant
	case req.SessionID != "" && ch.sessions != nil:
		record, err := ch.sessions.Load(c.Request.Context(), req.SessionID)
		if err != nil {
			ch.log.Warn("session load failed", "error", err)
			response.RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("session lookup failed"))
			return
		}
		if record == nil {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("session expired or unknown"))
			return
		}
		email, tenant = record.Email, record.Tenant
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("token or session_id required"))
		return
	}

	user, accessToken, err := ch.authService.SetPassword(c.Request.Context(), email, tenant, req.Password)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if req.SessionID != "" && ch.sessions != nil {
		if err := ch.sessions.Clear(c.Request.Context(), req.SessionID); err != nil {
			ch.log.Warn("session clear failed", "error", err)
		}
	}
	response.RespondOK(c, gin.H{
		"user_id":      user.ID,
		"access_token": accessToken,
	})
}

// Provision runs the full claim sequence: page creation, write-back onto the
// claim request, then the page-ready email. Only the provisioning step can
// fail the request; a skipped write-back or a lost email is reported inside
// the success payload, because the page is already live.
func (ch *ClaimHandler) Provision(c *gin.Context) {
	claim, rd, ok := ch.loadOwnClaim(c)
	if !ok {
		return
	}
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := ch.provisioner.Provision(c.Request.Context(), claim, rd.UserID, req.Title, req.Description)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	reconciled := false
	rec, recErr := ch.reconciler.Reconcile(c.Request.Context(), services.ReconcileInput{
		ClaimRequestID: claim.ID,
		Email:          claim.Email,
		Tenant:         claim.Tenant,
		PublicPageID:   result.PublicPageID,
		PublicPageURL:  result.PublicPageURL,
		LoginURL:       ch.loginURL(claim.Tenant),
		ClaimedByUID:   rd.UserID,
	})
	if recErr != nil {
		ch.log.Warn("claim write-back after provisioning failed", "error", recErr)
	} else {
		reconciled = rec.Reconciled
	}

	email := ch.notifier.Send(c.Request.Context(), services.SendInput{
		Kind:       services.NotificationPageReady,
		Tenant:     claim.Tenant,
		Email:      claim.Email,
		LoginEmail: claim.Email,
		PageURL:    result.PublicPageURL,
		LoginURL:   ch.loginURL(claim.Tenant),
	})

	payload := gin.H{
		"ok":              true,
		"memory_id":       result.MemoryID,
		"public_page_id":  result.PublicPageID,
		"public_page_url": result.PublicPageURL,
		"reconciled":      reconciled,
		"email_sent":      email.Delivered,
	}
	if !email.Delivered {
		payload["email_error"] = email.LastError
	}
	response.RespondOK(c, payload)
}

func (ch *ClaimHandler) WriteBackURLs(c *gin.Context) {
	claim, rd, ok := ch.loadOwnClaim(c)
	if !ok {
		return
	}
	var req struct {
		PublicPageID  uuid.UUID `json:"public_page_id"`
		PublicPageURL string    `json:"public_page_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := ch.reconciler.Reconcile(c.Request.Context(), services.ReconcileInput{
		ClaimRequestID: claim.ID,
		Email:          claim.Email,
		Tenant:         claim.Tenant,
		PublicPageID:   req.PublicPageID,
		PublicPageURL:  req.PublicPageURL,
		LoginURL:       ch.loginURL(claim.Tenant),
		ClaimedByUID:   rd.UserID,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"reconciled":       result.Reconciled,
		"claim_request_id": result.ClaimRequestID,
	})
}

// Notify sends the page-ready email. Delivery failure is reported in the
// payload, never as an HTTP error: the page is already live.
func (ch *ClaimHandler) Notify(c *gin.Context) {
	claim, _, ok := ch.loadOwnClaim(c)
	if !ok {
		return
	}
	var req struct {
		BackupEmail   string `json:"backup_email"`
		LoginEmail    string `json:"login_email"`
		LoginPassword string `json:"login_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	pageURL := ""
	if claim.PublicPageURL != nil {
		pageURL = *claim.PublicPageURL
	}
	loginURL := ch.loginURL(claim.Tenant)
	if claim.LoginURL != nil {
		loginURL = *claim.LoginURL
	}
	loginEmail := req.LoginEmail
	if loginEmail == "" {
		loginEmail = claim.Email
	}
	result := ch.notifier.Send(c.Request.Context(), services.SendInput{
		Kind:          services.NotificationPageReady,
		Tenant:        claim.Tenant,
		Email:         claim.Email,
		BackupEmail:   req.BackupEmail,
		PageURL:       pageURL,
		LoginURL:      loginURL,
		LoginEmail:    loginEmail,
		LoginPassword: req.LoginPassword,
	})
	response.RespondOK(c, gin.H{
		"delivered":    result.Delivered,
		"attempts":     result.Attempts,
		"delivered_to": result.DeliveredTo,
		"error":        result.LastError,
	})
}

// loadOwnClaim resolves the :id claim request and checks it belongs to the
// authenticated claimant by email. Writes the error response itself.
func (ch *ClaimHandler) loadOwnClaim(c *gin.Context) (*types.ClaimRequest, *ctxutil.RequestData, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
		return nil, nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid claim request id"))
		return nil, nil, false
	}
	records, err := ch.claims.GetByIDs(c.Request.Context(), nil, []uuid.UUID{id})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
		return nil, nil, false
	}
	if len(records) == 0 {
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("claim request not found"))
		return nil, nil, false
	}
	claim := records[0]
	if !strings.EqualFold(claim.Email, rd.Email) {
		response.RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("claim request belongs to another claimant"))
		return nil, nil, false
	}
	return claim, rd, true
}

func (ch *ClaimHandler) loginURL(tenant string) string {
	return fmt.Sprintf("%s/login/%s", ch.loginBaseURL, tenant)
}
