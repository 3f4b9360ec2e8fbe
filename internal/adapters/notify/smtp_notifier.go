// Package notify sends the run summary by e-mail.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"
	"github.com/mikey/inbox-sweeper/internal/core"
	"go.uber.org/zap"
)

// SMTPNotifier delivers the run summary to a relay
type SMTPNotifier struct {
	addr    string
	from    string
	to      []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewSMTPNotifier creates a notifier for the relay at addr
func NewSMTPNotifier(addr, from string, to []string, timeout time.Duration, logger *zap.Logger) *SMTPNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPNotifier{addr: addr, from: from, to: to, timeout: timeout, logger: logger}
}

// Notify sends one message describing the summary
func (n *SMTPNotifier) Notify(ctx context.Context, summary core.RunSummary) error {
	if len(n.to) == 0 {
		return fmt.Errorf("no notification recipients configured")
	}
	msg, err := n.compose(summary)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}

func (n *SMTPNotifier) compose(s core.RunSummary) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.CompletedAt)
	h.SetAddressList("From", []*mail.Address{{Name: "inbox-sweeper", Address: n.from}})
	to := make([]*mail.Address, len(n.to))
	for i, addr := range n.to {
		to[i] = &mail.Address{Address: addr}
	}
	h.SetAddressList("To", to)
	h.SetSubject(fmt.Sprintf("inbox-sweeper: %d approved, %d denied, %d for review", s.Approved, s.Denied, s.Flagged))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if _, err := w.Write([]byte(RenderText(s))); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

func (n *SMTPNotifier) send(ctx context.Context, data []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	dialer := net.Dialer{Timeout: n.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP relay: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(n.timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(n.from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, rcpt := range n.to {
		if err := c.Rcpt(rcpt, nil); err != nil {
			n.logger.Warn("RCPT TO failed for recipient", zap.String("recipient", rcpt), zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		n.logger.Warn("QUIT command failed", zap.Error(err))
	}

	n.logger.Info("Sent run summary", zap.Strings("to", n.to))
	return nil
}

// RenderText formats a summary as plain text
func RenderText(s core.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session:    %s\n", s.SessionID)
	fmt.Fprintf(&b, "Started:    %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Completed:  %s\n\n", s.CompletedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Decided:    %d\n", s.Total)
	fmt.Fprintf(&b, "Approved:   %d\n", s.Approved)
	fmt.Fprintf(&b, "Denied:     %d\n", s.Denied)
	fmt.Fprintf(&b, "For review: %d\n", s.Flagged)
	if s.BatchFailed > 0 {
		fmt.Fprintf(&b, "Failed batches: %d (items left undecided)\n", s.BatchFailed)
	}

	if len(s.GateFailures) > 0 {
		gates := make([]string, 0, len(s.GateFailures))
		for g := range s.GateFailures {
			gates = append(gates, string(g))
		}
		sort.Strings(gates)
		b.WriteString("\nGate failures:\n")
		for _, g := range gates {
			fmt.Fprintf(&b, "  %-14s %d\n", g, s.GateFailures[core.Gate(g)])
		}
	}
	return b.String()
}
