package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/mailhub/pkg/models"
)

// ErrNoMailbox is returned when an account has no email address to log in with
var ErrNoMailbox = errors.New("account has no email address")

var imapFolders = map[models.Folder]string{
	models.FolderInbox: "INBOX",
	models.FolderJunk:  "Junk",
}

// IMAPConfig configuration for the IMAP folder source
type IMAPConfig struct {
	Server      string // host:port
	DialTimeout time.Duration
	TLSConfig   *tls.Config
}

// IMAPSource reads folders over IMAP, opening one connection per call
type IMAPSource struct {
	config IMAPConfig
	logger *slog.Logger
}

// NewIMAPSource creates a new IMAP folder source
func NewIMAPSource(cfg IMAPConfig, logger *slog.Logger) *IMAPSource {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &IMAPSource{
		config: cfg,
		logger: logger.With("component", "imap"),
	}
}

// connect dials the server with TLS and authenticates with XOAUTH2
func (s *IMAPSource) connect(ctx context.Context, username, accessToken string) (*client.Client, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.config.DialTimeout},
		Config:    s.config.TLSConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", s.config.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}

	if err := imapClient.Authenticate(NewXOAuth2Client(username, accessToken)); err != nil {
		imapClient.Logout()
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	return imapClient, nil
}

// FetchFolder returns up to limit of the newest messages in folder
func (s *IMAPSource) FetchFolder(ctx context.Context, acc *models.Account, accessToken string, folder models.Folder, limit int) ([]models.Message, error) {
	name, ok := imapFolders[folder]
	if !ok {
		return nil, fmt.Errorf("unknown folder %d", folder)
	}
	if acc.Email == "" {
		return nil, ErrNoMailbox
	}

	imapClient, err := s.connect(ctx, acc.Email, accessToken)
	if err != nil {
		return nil, err
	}
	defer imapClient.Logout()

	// Unblock protocol reads when the caller gives up
	stop := context.AfterFunc(ctx, func() { imapClient.Terminate() })
	defer stop()

	mbox, err := imapClient.Select(name, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", name, err)
	}
	if mbox.Messages == 0 || limit <= 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqSet, items, messages)
	}()

	var result []models.Message
	for msg := range messages {
		result = append(result, s.parseMessage(msg, section, folder))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}

	s.logger.Debug("fetched folder", "account_id", acc.ID, "folder", name, "count", len(result))
	return result, nil
}

// parseMessage converts an IMAP message into a models.Message
func (s *IMAPSource) parseMessage(msg *imap.Message, section *imap.BodySectionName, folder models.Folder) models.Message {
	m := models.Message{
		ID:         fmt.Sprintf("%s:%d", folder, msg.Uid),
		Folder:     folder.String(),
		Sender:     models.FormatSender("", ""),
		ReceivedAt: msg.InternalDate,
	}

	if env := msg.Envelope; env != nil {
		m.Subject = env.Subject
		if m.ReceivedAt.IsZero() {
			m.ReceivedAt = env.Date
		}
		if len(env.From) > 0 {
			m.Sender = models.FormatSender(env.From[0].PersonalName, env.From[0].Address())
		}
		addrs := make([]string, 0, len(env.To))
		for _, to := range env.To {
			addrs = append(addrs, to.Address())
		}
		m.Receiver = strings.Join(addrs, ", ")
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return m
	}
	mr, err := mail.CreateReader(bodyReader)
	if err != nil {
		s.logger.Warn("failed to create mail reader", "uid", msg.Uid, "error", err)
		return m
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("failed to read part", "uid", msg.Uid, "error", err)
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(ct, "text/html") && m.HTMLBody == "":
			m.HTMLBody = string(body)
		case strings.HasPrefix(ct, "text/plain") && m.Preview == "":
			m.Preview = strings.TrimSpace(string(body))
		}
	}
	return m
}
