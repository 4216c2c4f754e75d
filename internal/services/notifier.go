package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/platform/sendgrid"
)

const notifyMaxAttempts = 3

// NotificationKind selects the message template.
type NotificationKind string

const (
	NotificationClaimLink NotificationKind = "claim_link"
	NotificationSecretKey NotificationKind = "secret_key"
	NotificationPageReady NotificationKind = "page_ready"
)

// SendInput carries everything a template needs. BackupEmail is optional; when
// set the message is delivered to both addresses and either landing counts as
// success. LoginEmail and LoginPassword appear in the page-ready message for
// first-time credential delivery; LoginPassword is only ever set by the
// staff-driven notify path and is never stored.
type SendInput struct {
	Kind          NotificationKind
	Tenant        string
	Email         string
	BackupEmail   string
	ClaimURL      string
	SecretKey     string
	PageURL       string
	LoginURL      string
	LoginEmail    string
	LoginPassword string
}

// SendResult reports delivery as data, not error flow. Delivered=false is a
// soft failure the caller records without failing its own operation.
type SendResult struct {
	Delivered   bool
	Attempts    int
	LastError   string
	DeliveredTo []string
}

// NotificationDispatcher sends transactional mail. Delivery failure is
// terminal for the message only, never for the operation that requested it.
type NotificationDispatcher interface {
	Send(ctx context.Context, input SendInput) SendResult
}

type mailer interface {
	Send(ctx context.Context, req sendgrid.SendEmailRequest) (*sendgrid.SendEmailResult, error)
}

type notificationDispatcher struct {
	log      *logger.Logger
	mail     mailer
	branding *BrandingCatalog
	backoff  func(attempt int) time.Duration
}

func NewNotificationDispatcher(baseLog *logger.Logger, mail mailer, branding *BrandingCatalog) NotificationDispatcher {
	return &notificationDispatcher{
		log:      baseLog.With("service", "NotificationDispatcher"),
		mail:     mail,
		branding: branding,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * 2 * time.Second
		},
	}
}

func (nd *notificationDispatcher) Send(ctx context.Context, input SendInput) SendResult {
	if nd == nil || nd.mail == nil {
		return SendResult{LastError: "dispatcher not configured"}
	}
	if strings.TrimSpace(input.Email) == "" {
		return SendResult{LastError: "recipient email empty"}
	}

	brand := nd.branding.For(input.Tenant)
	subject, text, html := renderNotification(input, brand)

	recipients := []string{input.Email}
	if strings.TrimSpace(input.BackupEmail) != "" && !strings.EqualFold(input.BackupEmail, input.Email) {
		recipients = append(recipients, input.BackupEmail)
	}

	type outcome struct {
		to       string
		attempts int
		err      error
	}
	results := make([]outcome, len(recipients))

	g, gctx := errgroup.WithContext(ctx)
	for i, to := range recipients {
		g.Go(func() error {
			attempts, err := nd.sendWithRetry(gctx, sendgrid.SendEmailRequest{
				From:       sendgrid.EmailAddress{Email: brand.SupportEmail, Name: brand.BrandName},
				To:         []sendgrid.EmailAddress{{Email: to}},
				Subject:    subject,
				Text:       text,
				HTML:       html,
				Categories: []string{string(input.Kind)},
			})
			results[i] = outcome{to: to, attempts: attempts, err: err}
			// Errors stay in results; one recipient failing must not cancel
			// the other send.
			return nil
		})
	}
	_ = g.Wait()

	result := SendResult{}
	for _, out := range results {
		if out.attempts > result.Attempts {
			result.Attempts = out.attempts
		}
		if out.err != nil {
			result.LastError = out.err.Error()
			continue
		}
		result.Delivered = true
		result.DeliveredTo = append(result.DeliveredTo, out.to)
	}
	if result.Delivered {
		result.LastError = ""
		nd.log.Info("notification delivered", "kind", input.Kind, "tenant", input.Tenant, "recipients", len(result.DeliveredTo))
	} else {
		nd.log.Warn("notification delivery failed", "kind", input.Kind, "tenant", input.Tenant, "attempts", result.Attempts, "error", result.LastError)
	}
	return result
}

func (nd *notificationDispatcher) sendWithRetry(ctx context.Context, req sendgrid.SendEmailRequest) (int, error) {
	var lastErr error
	for attempt := 0; attempt < notifyMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return attempt, ctx.Err()
			case <-time.After(nd.backoff(attempt - 1)):
			}
		}
		if _, err := nd.mail.Send(ctx, req); err != nil {
			lastErr = err
			continue
		}
		return attempt + 1, nil
	}
	return notifyMaxAttempts, lastErr
}

func renderNotification(input SendInput, brand TenantBranding) (subject, text, html string) {
	switch input.Kind {
	case NotificationClaimLink:
		subject = fmt.Sprintf("%s: claim your memory page", brand.BrandName)
		text = fmt.Sprintf("%s\n\nClaim your page: %s\n\nThis link expires in 72 hours.\n\nQuestions? %s",
			brand.Greeting, input.ClaimURL, brand.SupportEmail)
		html = fmt.Sprintf(`<div style="font-family:sans-serif"><p>%s</p><p><a href="%s" style="color:%s">Claim your memory page</a></p><p>This link expires in 72 hours.</p><p>Questions? %s</p></div>`,
			brand.Greeting, input.ClaimURL, brand.Color, brand.SupportEmail)
	case NotificationSecretKey:
		subject = fmt.Sprintf("%s: your activation key", brand.BrandName)
		text = fmt.Sprintf("%s\n\nYour activation key: %s\n\nIt is valid for 30 days.\n\nQuestions? %s",
			brand.Greeting, input.SecretKey, brand.SupportEmail)
		html = fmt.Sprintf(`<div style="font-family:sans-serif"><p>%s</p><p>Your activation key:</p><p style="font-size:1.4em;letter-spacing:2px;color:%s"><strong>%s</strong></p><p>It is valid for 30 days.</p><p>Questions? %s</p></div>`,
			brand.Greeting, brand.Color, input.SecretKey, brand.SupportEmail)
	case NotificationPageReady:
		subject = fmt.Sprintf("%s: your memory page is live", brand.BrandName)
		creds := ""
		credsHTML := ""
		if input.LoginEmail != "" {
			creds = fmt.Sprintf("\nSign in with: %s", input.LoginEmail)
			credsHTML = fmt.Sprintf("<p>Sign in with: <strong>%s</strong></p>", input.LoginEmail)
		}
		if input.LoginPassword != "" {
			creds += fmt.Sprintf("\nYour password: %s", input.LoginPassword)
			credsHTML += fmt.Sprintf("<p>Your password: <strong>%s</strong></p>", input.LoginPassword)
		}
		text = fmt.Sprintf("%s\n\nView your page: %s\nManage it: %s%s\n\nQuestions? %s",
			brand.Greeting, input.PageURL, input.LoginURL, creds, brand.SupportEmail)
		html = fmt.Sprintf(`<div style="font-family:sans-serif"><p>%s</p><p><a href="%s" style="color:%s">View your memory page</a></p><p><a href="%s">Manage it here</a></p>%s<p>Questions? %s</p></div>`,
			brand.Greeting, input.PageURL, brand.Color, input.LoginURL, credsHTML, brand.SupportEmail)
	default:
		subject = fmt.Sprintf("%s: notification", brand.BrandName)
		text = brand.Greeting
		html = fmt.Sprintf("<p>%s</p>", brand.Greeting)
	}
	return subject, text, html
}
