package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/jhillyerd/enmime"
)

// Fetched describes a newly acquired export: the message UID that carried it
// and the canonical document path it was written to. The UID becomes the new
// sync cursor once the caller decides the export was durably applied.
type Fetched struct {
	UID  string
	Path string
}

// Option is a functional option for Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client fetches the newest export attachment from an IMAP mailbox.
type Client struct {
	config  *Config
	docPath string // canonical document location
	logger  *slog.Logger
}

// NewClient creates a Client that writes decompressed documents to docPath.
func NewClient(cfg *Config, docPath string, opts ...Option) *Client {
	c := &Client{
		config:  cfg,
		docPath: docPath,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// dial connects and authenticates. The caller must log out.
func (c *Client) dial(ctx context.Context) (*imapclient.Client, error) {
	addr := c.config.Addr()
	c.logger.Debug("connecting to IMAP server", "addr", addr, "tls", c.config.TLS, "starttls", c.config.STARTTLS)

	imapOpts := &imapclient.Options{}
	var (
		conn *imapclient.Client
		err  error
	)
	switch {
	case c.config.TLS:
		conn, err = imapclient.DialTLS(addr, imapOpts)
	case c.config.STARTTLS:
		conn, err = imapclient.DialStartTLS(addr, imapOpts)
	default:
		conn, err = imapclient.DialInsecure(addr, imapOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	if err := conn.Login(c.config.Username, c.config.Password).Wait(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("IMAP login: %w", err)
	}
	return conn, nil
}

// FetchLatest looks for the newest message matching the configured subject
// filter, skips it when its UID equals cursor, and otherwise downloads the
// export attachment, decompresses it, and writes it to the canonical
// document location.
//
// Every expected absence-of-data condition — no credentials, no matching
// message, no usable attachment, a corrupt archive, transport failure — is
// logged and reported as (nil, nil) so the scheduler simply retries next
// cycle. The cursor is never advanced here; the caller commits it once the
// export has been applied.
func (c *Client) FetchLatest(ctx context.Context, cursor string) (*Fetched, error) {
	if !c.config.Configured() {
		c.logger.Warn("mailbox credentials not configured, skipping fetch")
		return nil, nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Error("mailbox connection failed", "error", err)
		return nil, nil
	}
	defer func() {
		_ = conn.Logout().Wait()
	}()

	if _, err := conn.Select(c.config.MailboxName(), nil).Wait(); err != nil {
		c.logger.Error("select mailbox failed", "mailbox", c.config.MailboxName(), "error", err)
		return nil, nil
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Subject", Value: c.config.Subject},
		},
	}
	searchData, err := conn.UIDSearch(criteria, &imap.SearchOptions{ReturnAll: true}).Wait()
	if err != nil {
		c.logger.Error("UID SEARCH failed", "error", err)
		return nil, nil
	}

	uidSet, ok := searchData.All.(imap.UIDSet)
	if !ok {
		c.logger.Info("no export messages found", "subject", c.config.Subject)
		return nil, nil
	}
	uids, _ := uidSet.Nums()
	if len(uids) == 0 {
		c.logger.Info("no export messages found", "subject", c.config.Subject)
		return nil, nil
	}

	latest := uids[len(uids)-1]
	latestStr := strconv.FormatUint(uint64(latest), 10)
	if latestStr == cursor {
		c.logger.Debug("newest export already processed", "uid", latestStr)
		return nil, nil
	}
	c.logger.Info("new export message found", "uid", latestStr)

	raw, err := c.fetchBody(conn, latest)
	if err != nil {
		c.logger.Error("fetch export message failed", "uid", latestStr, "error", err)
		return nil, nil
	}

	name, content, err := pickAttachment(raw)
	if err != nil {
		c.logger.Warn("export message has no usable attachment", "uid", latestStr, "error", err)
		return nil, nil
	}
	c.logger.Info("export attachment downloaded", "name", name, "size_bytes", len(content))

	doc, err := decompress(content, name)
	if err != nil {
		c.logger.Error("decompress attachment failed", "name", name, "error", err)
		return nil, nil
	}
	if !json.Valid(doc) {
		c.logger.Error("attachment is not a valid export document", "name", name)
		return nil, nil
	}

	if err := c.writeDocument(doc); err != nil {
		c.logger.Error("write export document failed", "path", c.docPath, "error", err)
		return nil, nil
	}
	c.logger.Info("export document saved", "path", c.docPath, "size_bytes", len(doc))

	return &Fetched{UID: latestStr, Path: c.docPath}, nil
}

// fetchBody downloads the full RFC822 body of one message.
func (c *Client) fetchBody(conn *imapclient.Client, uid imap.UID) ([]byte, error) {
	var uidSet imap.UIDSet
	uidSet.AddNum(uid)

	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}}, // empty section = entire message
	}
	msgs, err := conn.Fetch(uidSet, fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("UID FETCH: %w", err)
	}
	for _, msg := range msgs {
		if len(msg.BodySection) > 0 && len(msg.BodySection[0].Bytes) > 0 {
			return msg.BodySection[0].Bytes, nil
		}
	}
	return nil, fmt.Errorf("message body not returned by server")
}

// pickAttachment parses the raw MIME message and returns the first
// attachment whose name looks like an export artifact.
func pickAttachment(raw []byte) (name string, content []byte, err error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("parse MIME message: %w", err)
	}

	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	for _, part := range parts {
		if part.FileName == "" {
			continue
		}
		if supportedAttachment(part.FileName) {
			return part.FileName, part.Content, nil
		}
	}
	return "", nil, fmt.Errorf("no attachment with a supported suffix (.gz, .tar.gz, %s)", documentSuffix)
}

// writeDocument replaces the canonical document, staging through a temp file
// in the same directory so a crash never leaves a torn document behind.
func (c *Client) writeDocument(doc []byte) error {
	dir := filepath.Dir(c.docPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create document directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*"+documentSuffix)
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(doc); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpName, c.docPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

// DocumentPath returns the canonical document location.
func (c *Client) DocumentPath() string {
	return c.docPath
}

// DescribeSubject returns the subject filter for logs.
func (c *Client) DescribeSubject() string {
	return strings.TrimSpace(c.config.Subject)
}
