package ingestion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/recruitai/screening-agent/internal/models"
)

// GmailSource fetches candidate documents attached to emails. It is a narrow
// collaborator: the pipeline only sees the resulting sourced files.
type GmailSource struct {
	service *gmail.Service
	logger  *zap.Logger
}

// NewGmailSource builds a Gmail client from an OAuth credentials file and a
// previously saved token. The interactive consent flow is out of band; a
// missing token is an error here, not a prompt.
func NewGmailSource(ctx context.Context, credentialsFile, tokenFile string, logger *zap.Logger) (*GmailSource, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading gmail credentials: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing gmail credentials: %w", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("loading gmail token (run the auth flow first): %w", err)
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail client: %w", err)
	}

	return &GmailSource{service: srv, logger: logger}, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// FetchAttachments returns supported attachments from messages matching the
// subject query, tagged with each message's subject so the role pre-filter
// can use it as a signal. Per-message failures are logged and skipped.
func (g *GmailSource) FetchAttachments(ctx context.Context, subject string) ([]models.SourcedFile, error) {
	user := "me"
	query := fmt.Sprintf("subject:%s has:attachment", subject)

	list, err := g.service.Users.Messages.List(user).Q(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return nil, nil
	}

	var files []models.SourcedFile
	for _, ref := range list.Messages {
		msg, err := g.service.Users.Messages.Get(user, ref.Id).Context(ctx).Do()
		if err != nil {
			g.logger.Warn("fetching message", zap.String("message_id", ref.Id), zap.Error(err))
			continue
		}

		msgSubject := headerValue(msg, "Subject")
		for _, part := range msg.Payload.Parts {
			if part.Filename == "" || part.Body == nil || part.Body.AttachmentId == "" {
				continue
			}
			if !Supported(part.Filename) {
				continue
			}

			att, err := g.service.Users.Messages.Attachments.Get(user, ref.Id, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				g.logger.Warn("fetching attachment",
					zap.String("message_id", ref.Id),
					zap.String("filename", part.Filename),
					zap.Error(err))
				continue
			}
			data, err := base64.URLEncoding.DecodeString(att.Data)
			if err != nil {
				g.logger.Warn("decoding attachment",
					zap.String("filename", part.Filename),
					zap.Error(err))
				continue
			}

			files = append(files, models.SourcedFile{
				Filename: "[Email] " + part.Filename,
				Data:     data,
				Subject:  msgSubject,
			})
		}
	}

	g.logger.Info("fetched mailbox attachments",
		zap.String("query", query),
		zap.Int("count", len(files)))
	return files, nil
}

func headerValue(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}
