// client.go
package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net/smtp"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/jordan-wright/email"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"DealPropension/src/config"
	"DealPropension/src/storage"
)

/******************** constants ********************/
const (
	MaxFetchMessages = 100 // upper bound per fetch
	FetchBufferSize  = 10
)

/******************** interfaces ********************/

// MailService is the part of an IMAP client the workbook source needs.
type MailService interface {
	Connect() error
	Disconnect()
	// FetchUnreadEmails returns unread mails received after since.
	FetchUnreadEmails(since time.Time) ([]*Email, error)
}

/******************** data ********************/

type Email struct {
	UID         uint32
	Date        time.Time
	From        string
	Subject     string
	Attachments []*Attachment
}

type Attachment struct {
	Filename string
	Content  []byte
}

// Workbook returns the first .xlsx attachment, or nil.
func (e *Email) Workbook() *Attachment {
	if e == nil {
		return nil
	}
	for _, a := range e.Attachments {
		if strings.EqualFold(filepath.Ext(a.Filename), ".xlsx") {
			return a
		}
	}
	return nil
}

/******************** IMAP client ********************/

type EmailClient struct {
	server    string // host:port
	username  string
	password  string
	client    *client.Client
	mu        sync.Mutex
	connected bool
}

func NewEmailClient(server, username, password string) *EmailClient {
	return &EmailClient{
		server:   server,
		username: username,
		password: password,
	}
}

// Connect dials TLS and logs in, reusing a live connection.
func (s *EmailClient) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		if _, err := s.client.Capability(); err == nil {
			return nil
		}
		s.client.Logout()
		s.client = nil
		s.connected = false
	}

	c, err := client.DialTLS(s.server, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.server, err)
	}

	if err := c.Login(s.username, s.password); err != nil {
		c.Logout()
		return fmt.Errorf("login: %w", err)
	}

	s.client = c
	s.connected = true
	return nil
}

func (s *EmailClient) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Logout()
		s.client = nil
	}
	s.connected = false
}

func (s *EmailClient) FetchUnreadEmails(since time.Time) ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, fmt.Errorf("not connected to %s", s.server)
	}

	if _, err := s.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = since

	ids, err := s.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	// newest ids last; keep the most recent ones
	if len(ids) > MaxFetchMessages {
		ids = ids[len(ids)-MaxFetchMessages:]
	}

	return s.fetchMessages(ids)
}

func (s *EmailClient) fetchMessages(ids []uint32) ([]*Email, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, FetchBufferSize)
	done := make(chan error, 1)

	go func() {
		done <- s.client.Fetch(seqset, items, messages)
	}()

	var emails []*Email
	var parseErrs []error
	for msg := range messages {
		e, err := parseEmail(msg.GetBody(section))
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("uid %d: %w", msg.Uid, err))
			continue
		}
		e.UID = msg.Uid
		if e.Date.IsZero() {
			e.Date = msg.InternalDate
		}
		emails = append(emails, e)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if len(emails) == 0 && len(parseErrs) > 0 {
		return nil, parseErrs[0]
	}

	return emails, nil
}

/******************** parsing ********************/

// parseEmail reads headers and attachments of one RFC 5322 message.
func parseEmail(r io.Reader) (*Email, error) {
	if r == nil {
		return nil, fmt.Errorf("empty message body")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("create mail reader: %w", err)
	}

	header := mr.Header
	date, _ := header.Date()

	e := &Email{
		Date:    date,
		From:    decodeHeader(header.Get("From")),
		Subject: decodeHeader(header.Get("Subject")),
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := h.Filename()
		if err != nil || filename == "" {
			continue
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, p.Body); err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", filename, err)
		}
		e.Attachments = append(e.Attachments, &Attachment{
			Filename: decodeHeader(filename),
			Content:  buf.Bytes(),
		})
	}

	return e, nil
}

// decodeHeader decodes RFC 2047 encoded words, returning the input when it cannot.
func decodeHeader(header string) string {
	decoder := mime.WordDecoder{
		CharsetReader: charsetReader,
	}

	decoded, err := decoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// charsetReader covers the Latin charsets Brazilian mail clients still send.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin1":
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	case "iso-8859-15":
		return transform.NewReader(input, charmap.ISO8859_15.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(input, charmap.Windows1252.NewDecoder()), nil
	case "utf-8", "us-ascii":
		return input, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
}

/******************** workflow ********************/

// CheckAndProcessEmails connects, fetches unread mail younger than maxAge and returns the
// newest one whose subject contains keyword and carries a workbook. It returns nil, nil
// when there is none.
func CheckAndProcessEmails(mailService MailService, logger *storage.Logger, keyword string, maxAge time.Duration) (*Email, error) {
	startTime := time.Now()
	logger.Info("checking mailbox for a new workbook")

	if err := mailService.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer mailService.Disconnect()

	emails, err := mailService.FetchUnreadEmails(startTime.Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}

	target := filterLatestTargetEmail(emails, keyword)
	if target == nil {
		logger.Info(fmt.Sprintf("no mail matching %q among %d unread", keyword, len(emails)))
		return nil, nil
	}

	logger.Info(fmt.Sprintf("found %q from %s in %v", target.Subject, target.From, time.Since(startTime)))
	return target, nil
}

// filterLatestTargetEmail returns the newest mail whose subject contains keyword and that
// has an .xlsx attachment.
func filterLatestTargetEmail(emails []*Email, keyword string) *Email {
	var targets []*Email
	for _, e := range emails {
		if strings.Contains(e.Subject, keyword) && e.Workbook() != nil {
			targets = append(targets, e)
		}
	}

	if len(targets) == 0 {
		return nil
	}

	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Date.After(targets[j].Date)
	})

	return targets[0]
}

/******************** report delivery ********************/

// SendReport mails body to the configured recipients over implicit TLS. It is a no-op when
// no SMTP server or recipient is configured.
func SendReport(c *config.Config, body []byte) error {
	if c.SendEmail.Server == "" || len(c.SendEmail.To) == 0 {
		return nil
	}

	e := email.NewEmail()
	e.From = c.SendEmail.Username
	e.To = c.SendEmail.To
	e.Subject = c.SendEmail.Subject
	e.Text = body

	smtpAddr := c.SendEmail.Server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":465"
	}
	host := strings.Split(smtpAddr, ":")[0]

	err := e.SendWithTLS(
		smtpAddr,
		smtp.PlainAuth("", c.SendEmail.Username, c.SendEmail.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("send report via %s: %w", smtpAddr, err)
	}
	return nil
}
