package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/mail"
)

const digestBatchLimit = 1000

type digestStore interface {
	QueuedEmails(ctx context.Context, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, ids []string, at time.Time) error
}

type digestPreferences interface {
	Find(ctx context.Context, notifiableID string, notifiableType models.NotifiableType) (*models.NotificationPreference, error)
	MarkDigested(ctx context.Context, notifiableID string, notifiableType models.NotifiableType, at time.Time) error
}

// DigestSummary reports one sweep.
type DigestSummary struct {
	Recipients    int `json:"recipients"`
	Notifications int `json:"notifications"`
	Failed        int `json:"failed"`
	Deferred      int `json:"deferred"`
}

// DigestService batches queued email notifications into one message per recipient.
type DigestService struct {
	store      digestStore
	prefs      digestPreferences
	recipients recipientDirectory
	mailer     mail.Sender
	markdown   *mail.Markdown
	baseURL    string
	logger     *zap.Logger
	now        func() time.Time
}

// NewDigestService constructs the digest sweeper.
func NewDigestService(store digestStore, prefs digestPreferences, recipients recipientDirectory, mailer mail.Sender, baseURL string, logger *zap.Logger) *DigestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DigestService{
		store:      store,
		prefs:      prefs,
		recipients: recipients,
		mailer:     mailer,
		markdown:   mail.NewMarkdown(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
		now:        time.Now,
	}
}

type digestGroup struct {
	id    string
	kind  models.NotifiableType
	items []models.Notification
}

// Sweep sends one digest per recipient with queued emails and marks the batch sent.
// Recipients whose digest interval has not elapsed since their last digest are
// deferred, and a recipient whose digest cannot be sent keeps its notifications queued.
func (s *DigestService) Sweep(ctx context.Context) (DigestSummary, error) {
	rows, err := s.store.QueuedEmails(ctx, digestBatchLimit)
	if err != nil {
		return DigestSummary{}, err
	}

	var groups []*digestGroup
	var current *digestGroup
	for _, n := range rows {
		if current == nil || current.id != n.NotifiableID || current.kind != n.NotifiableType {
			current = &digestGroup{id: n.NotifiableID, kind: n.NotifiableType}
			groups = append(groups, current)
		}
		current.items = append(current.items, n)
	}

	var summary DigestSummary
	now := s.now().UTC()
	for _, group := range groups {
		if ctx.Err() != nil {
			break
		}
		pref, err := s.prefs.Find(ctx, group.id, group.kind)
		if err != nil {
			summary.Failed++
			s.logger.Sugar().Warnw("failed to load digest preferences", "recipient_id", group.id, "type", group.kind, "error", err)
			continue
		}
		if !DigestDue(pref, now) {
			summary.Deferred++
			continue
		}
		if err := s.sendDigest(ctx, group); err != nil {
			summary.Failed++
			s.logger.Sugar().Warnw("failed to send notification digest", "recipient_id", group.id, "type", group.kind, "count", len(group.items), "error", err)
			continue
		}
		summary.Recipients++
		summary.Notifications += len(group.items)
		if pref != nil {
			if err := s.prefs.MarkDigested(context.WithoutCancel(ctx), group.id, group.kind, now); err != nil {
				s.logger.Sugar().Warnw("failed to record digest time", "recipient_id", group.id, "error", err)
			}
		}
	}
	if len(groups) > 0 {
		s.logger.Sugar().Infow("digest sweep finished", "recipients", summary.Recipients, "notifications", summary.Notifications, "deferred", summary.Deferred, "failed", summary.Failed)
	}
	return summary, nil
}

func (s *DigestService) sendDigest(ctx context.Context, group *digestGroup) error {
	recipient, err := s.recipients.Find(ctx, group.id, group.kind)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if recipient.Email == "" {
		return fmt.Errorf("recipient %s has no email address", group.id)
	}

	subject, htmlBody, textBody := s.compose(recipient, group.items)
	if err := s.mailer.Send(ctx, mail.Message{To: recipient.Email, Subject: subject, HTMLBody: htmlBody, TextBody: textBody}); err != nil {
		return err
	}

	ids := make([]string, len(group.items))
	for i, n := range group.items {
		ids[i] = n.ID
	}
	if err := s.store.MarkSent(context.WithoutCancel(ctx), ids, s.now().UTC()); err != nil {
		return fmt.Errorf("mark digest sent: %w", err)
	}
	return nil
}

func (s *DigestService) compose(recipient *models.Recipient, items []models.Notification) (subject, htmlBody, textBody string) {
	now := s.now()
	subject = fmt.Sprintf("Your AidlY digest: %s %s", humanize.Comma(int64(len(items))), pluralize(len(items), "update", "updates"))

	var b strings.Builder
	if recipient.Name != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", recipient.Name)
	}
	fmt.Fprintf(&b, "Here is what happened since your last digest.\n\n")
	for _, n := range items {
		fmt.Fprintf(&b, "- **%s** (%s)  \n  %s", n.Title, humanize.RelTime(n.CreatedAt, now, "ago", "from now"), firstLine(n.Message))
		if n.ActionURL != nil && *n.ActionURL != "" {
			fmt.Fprintf(&b, " [Open](%s)", s.absoluteURL(*n.ActionURL))
		}
		b.WriteString("\n")
	}
	textBody = b.String()

	fragment, err := s.markdown.ToHTML(textBody)
	if err != nil {
		fragment = s.markdown.Sanitize("<pre>" + textBody + "</pre>")
	}
	htmlBody = mail.Layout(subject, fragment, s.baseURL, "Open AidlY")
	return subject, htmlBody, textBody
}

func (s *DigestService) absoluteURL(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") || s.baseURL == "" {
		return link
	}
	return s.baseURL + "/" + strings.TrimLeft(link, "/")
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return line
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
