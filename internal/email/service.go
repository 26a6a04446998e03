// Package email sends account e-mails (password reset, address change,
// welcome) through Resend, or captures them in memory for development and tests.
package email

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/hostdesk/internal/logutil"
	"github.com/kuitang/hostdesk/internal/obs"
)

// EmailService defines the interface for sending emails.
type EmailService interface {
	// Send renders templateName with data and delivers it to one recipient.
	// data must be the template's own type (PasswordResetData for
	// TemplatePasswordReset, and so on).
	Send(to, templateName string, data any) error
}

// SentEmail is one message captured by MockEmailService.
type SentEmail struct {
	To       string
	Template string
	Data     any
	SentAt   time.Time
}

// Link returns the action link carried by the captured email, if any.
func (e SentEmail) Link() string {
	switch d := e.Data.(type) {
	case PasswordResetData:
		return d.Link
	case EmailChangeData:
		return d.Link
	}
	return ""
}

func (e SentEmail) expiresIn() string {
	switch d := e.Data.(type) {
	case PasswordResetData:
		return d.ExpiresIn
	case EmailChangeData:
		return d.ExpiresIn
	}
	return ""
}

// MockEmailService captures e-mails in memory instead of sending them.
// With an outbox directory (MOCK_EMAIL_OUTBOX_DIR) each message is also
// written there as one JSON file so out-of-process tests can follow links.
type MockEmailService struct {
	mu        sync.Mutex
	sent      []SentEmail
	outboxDir string
	failWith  error
}

// NewMockEmailService creates a mock that writes to MOCK_EMAIL_OUTBOX_DIR
// when it is set.
func NewMockEmailService() *MockEmailService {
	return NewMockEmailServiceWithOutbox(os.Getenv("MOCK_EMAIL_OUTBOX_DIR"))
}

// NewMockEmailServiceWithOutbox creates a mock writing to dir. An empty dir,
// or one that cannot be created, keeps messages in memory only.
func NewMockEmailServiceWithOutbox(dir string) *MockEmailService {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			obs.Pkg("email").Warn("mock_outbox_unavailable", "dir", dir, "error", err)
			dir = ""
		}
	}
	return &MockEmailService{outboxDir: dir}
}

// Send renders the message (so template errors surface in tests), records it
// and logs the action link.
func (m *MockEmailService) Send(to, templateName string, data any) error {
	if _, err := Render(templateName, data); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	msg := SentEmail{To: to, Template: templateName, Data: data, SentAt: time.Now()}
	m.sent = append(m.sent, msg)

	// The link is a live credential; only the development mock prints it.
	obs.Pkg("email").Info("mock_email_sent",
		"to", logutil.MaskEmail(to),
		"template", templateName,
		"link", msg.Link(),
		"expires_in", msg.expiresIn(),
	)

	if m.outboxDir == "" {
		return nil
	}
	return m.writeOutbox(len(m.sent), msg)
}

// FailWith makes subsequent sends return err (nil restores success).
func (m *MockEmailService) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// LastEmail returns the most recently sent email, or the zero value.
func (m *MockEmailService) LastEmail() SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentEmail{}
	}
	return m.sent[len(m.sent)-1]
}

// SentTo returns the captured e-mails addressed to addr, oldest first.
func (m *MockEmailService) SentTo(addr string) []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentEmail
	for _, e := range m.sent {
		if strings.EqualFold(e.To, addr) {
			out = append(out, e)
		}
	}
	return out
}

// Clear removes all captured emails.
func (m *MockEmailService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// Count returns the number of captured emails.
func (m *MockEmailService) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type outboxRecord struct {
	Sequence  int       `json:"sequence"`
	To        string    `json:"to"`
	Template  string    `json:"template"`
	Link      string    `json:"link,omitempty"`
	ExpiresIn string    `json:"expires_in,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// writeOutbox publishes the record atomically: readers polling the directory
// never see a partial file.
func (m *MockEmailService) writeOutbox(seq int, msg SentEmail) error {
	payload, err := json.Marshal(outboxRecord{
		Sequence:  seq,
		To:        msg.To,
		Template:  msg.Template,
		Link:      msg.Link(),
		ExpiresIn: msg.expiresIn(),
		SentAt:    msg.SentAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox record: %w", err)
	}

	tmp, err := os.CreateTemp(m.outboxDir, ".outbox-*")
	if err != nil {
		return fmt.Errorf("create outbox file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write outbox file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close outbox file: %w", err)
	}

	name := fmt.Sprintf("%06d-%s-%s.json", seq, outboxComponent(msg.Template), outboxComponent(msg.To))
	if err := os.Rename(tmp.Name(), filepath.Join(m.outboxDir, name)); err != nil {
		return fmt.Errorf("publish outbox file: %w", err)
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._@-]+`)

func outboxComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return unsafeFileChars.ReplaceAllString(s, "_")
}
