package mailbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/retry"
	"github.com/mikey/inbox-sweeper/internal/utils"
	"go.uber.org/zap"
)

// Label names attached to summaries for user-applied IMAP flags
const (
	LabelStarred   = "STARRED"
	LabelImportant = "IMPORTANT"
)

// flagLabels maps IMAP flags to the label names used in summaries
var flagLabels = map[imap.Flag]string{
	imap.FlagFlagged:           LabelStarred,
	imap.Flag("$Important"):    LabelImportant,
	imap.Flag("\\Important"):   LabelImportant,
	imap.Flag("$MailFlagBit0"): LabelStarred,
}

// previewBytes bounds how much of each message body is fetched
const previewBytes = 16 * 1024

// IMAPOptions configures an IMAP mailbox
type IMAPOptions struct {
	Host         string
	Port         string
	Username     string
	Password     string
	TLS          bool
	Mailbox      string
	TrashMailbox string
	PageSize     int
	PreviewSize  int
	ManualLabels []string
}

// IMAPMailbox reads summaries from one IMAP folder and implements Fetcher,
// LabelState and Deleter over a single lazily opened connection.
type IMAPMailbox struct {
	opts   IMAPOptions
	tp     *utils.TextProcessor
	logger *zap.Logger

	mu          sync.Mutex
	client      *imapclient.Client
	uidValidity uint32
}

// NewIMAPMailbox creates an IMAP mailbox. No connection is made until first use.
func NewIMAPMailbox(opts IMAPOptions, tp *utils.TextProcessor, logger *zap.Logger) *IMAPMailbox {
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if opts.PageSize < 1 {
		opts.PageSize = 500
	}
	return &IMAPMailbox{opts: opts, tp: tp, logger: logger}
}

// connectLocked returns the open client, dialing and selecting the folder if needed
func (m *IMAPMailbox) connectLocked() (*imapclient.Client, error) {
	if m.client != nil {
		return m.client, nil
	}

	addr := m.opts.Host + ":" + m.opts.Port
	var client *imapclient.Client
	var err error
	if m.opts.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, retry.MarkRetryable(fmt.Errorf("connecting to IMAP %s: %w", addr, err))
	}

	if err := client.Login(m.opts.Username, m.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("authentication failed for %s: %w", m.opts.Username, err)
	}

	data, err := client.Select(m.opts.Mailbox, nil).Wait()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("selecting %s: %w", m.opts.Mailbox, err)
	}
	if m.uidValidity != 0 && m.uidValidity != data.UIDValidity {
		_ = client.Close()
		return nil, fmt.Errorf("mailbox %s UIDVALIDITY changed from %d to %d", m.opts.Mailbox, m.uidValidity, data.UIDValidity)
	}

	m.client = client
	m.uidValidity = data.UIDValidity
	m.logger.Info("Connected to IMAP",
		zap.String("address", addr),
		zap.String("mailbox", m.opts.Mailbox),
		zap.Uint32("messages", data.NumMessages))
	return client, nil
}

// dropLocked forgets a connection after a failed command
func (m *IMAPMailbox) dropLocked(err error) error {
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
	return retry.MarkRetryable(err)
}

// Close logs out
func (m *IMAPMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Logout().Wait()
	m.client = nil
	return err
}

// FetchPage returns summaries with UIDs above the cursor in ascending order
func (m *IMAPMailbox) FetchPage(ctx context.Context, cursor string) (core.Page, error) {
	if err := ctx.Err(); err != nil {
		return core.Page{}, err
	}
	var after imap.UID
	if cursor != "" {
		n, err := strconv.ParseUint(cursor, 10, 32)
		if err != nil {
			return core.Page{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		after = imap.UID(n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.connectLocked()
	if err != nil {
		return core.Page{}, err
	}

	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{{imap.UIDRange{Start: after + 1, Stop: 0}}},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return core.Page{}, m.dropLocked(fmt.Errorf("searching messages: %w", err))
	}

	// "n:*" always matches the highest UID, even when it is below n
	var uids []imap.UID
	for _, uid := range searchData.AllUIDs() {
		if uid > after {
			uids = append(uids, uid)
		}
	}
	slices.Sort(uids)
	if len(uids) == 0 {
		return core.Page{}, nil
	}

	var page core.Page
	if len(uids) > m.opts.PageSize {
		uids = uids[:m.opts.PageSize]
		page.NextCursor = strconv.FormatUint(uint64(uids[len(uids)-1]), 10)
	}

	body := &imap.FetchItemBodySection{
		Peek:    true,
		Partial: &imap.SectionPartial{Offset: 0, Size: previewBytes},
	}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{body},
	})

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			m.logger.Warn("Skipping unreadable message", zap.Error(err))
			continue
		}
		page.Items = append(page.Items, m.summaryFromBuffer(buf, body))
	}
	if err := fetchCmd.Close(); err != nil {
		return core.Page{}, m.dropLocked(fmt.Errorf("fetching messages: %w", err))
	}

	slices.SortFunc(page.Items, func(a, b core.EmailSummary) int { return strings.Compare(a.ID, b.ID) })
	return page, nil
}

func (m *IMAPMailbox) summaryFromBuffer(buf *imapclient.FetchMessageBuffer, body *imap.FetchItemBodySection) core.EmailSummary {
	s := core.EmailSummary{
		ID:     formatID(m.uidValidity, buf.UID),
		Labels: labelsFromFlags(buf.Flags),
	}
	if env := buf.Envelope; env != nil {
		s.Subject = env.Subject
		if len(env.From) > 0 {
			s.Sender = env.From[0].Addr()
			s.SenderDomain = DomainOf(env.From[0].Host)
		}
	}
	if raw := buf.FindBodySection(body); raw != nil {
		preview, err := ExtractPreview(raw)
		if err != nil {
			m.logger.Debug("Failed to extract preview", zap.String("email_id", s.ID), zap.Error(err))
		}
		s.Preview = m.tp.ProcessText(preview, m.opts.PreviewSize)
	}
	return s
}

// HasManualFlag re-reads the live flags of the message
func (m *IMAPMailbox) HasManualFlag(ctx context.Context, item core.EmailSummary) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	uid, err := m.parseID(item.ID)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.connectLocked()
	if err != nil {
		return false, err
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{Flags: true, UID: true})
	msgs, err := fetchCmd.Collect()
	if err != nil {
		return false, m.dropLocked(fmt.Errorf("fetching flags: %w", err))
	}
	if len(msgs) == 0 {
		return false, fmt.Errorf("message %s no longer exists", item.ID)
	}

	for _, label := range labelsFromFlags(msgs[0].Flags) {
		if slices.ContainsFunc(m.opts.ManualLabels, func(l string) bool { return strings.EqualFold(l, label) }) {
			return true, nil
		}
	}
	return false, nil
}

// Delete moves the message to the trash folder, or marks it \Deleted when
// the server can't move it
func (m *IMAPMailbox) Delete(ctx context.Context, emailID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid, err := m.parseID(emailID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.connectLocked()
	if err != nil {
		return err
	}
	set := imap.UIDSetNum(uid)

	if m.opts.TrashMailbox != "" {
		_, err := client.Move(set, m.opts.TrashMailbox).Wait()
		if err == nil {
			return nil
		}
		m.logger.Warn("Move to trash failed, flagging as deleted",
			zap.String("email_id", emailID),
			zap.String("trash", m.opts.TrashMailbox),
			zap.Error(err))
	}

	storeCmd := client.Store(set, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return m.dropLocked(fmt.Errorf("flagging %s deleted: %w", emailID, err))
	}
	return nil
}

func (m *IMAPMailbox) parseID(id string) (imap.UID, error) {
	validity, uid, err := parseID(id)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	current := m.uidValidity
	m.mu.Unlock()
	if current != 0 && validity != current {
		return 0, fmt.Errorf("message %s belongs to UIDVALIDITY %d, mailbox is at %d", id, validity, current)
	}
	return uid, nil
}

func formatID(validity uint32, uid imap.UID) string {
	return fmt.Sprintf("%d:%010d", validity, uint32(uid))
}

func parseID(id string) (uint32, imap.UID, error) {
	v, u, ok := strings.Cut(id, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed message id %q", id)
	}
	validity, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed message id %q: %w", id, err)
	}
	uid, err := strconv.ParseUint(u, 10, 32)
	if err != nil || uid == 0 {
		return 0, 0, errors.Join(fmt.Errorf("malformed message id %q", id), err)
	}
	return uint32(validity), imap.UID(uid), nil
}

func labelsFromFlags(flags []imap.Flag) []string {
	var labels []string
	for _, f := range flags {
		label, ok := flagLabels[f]
		if !ok {
			continue
		}
		if !slices.Contains(labels, label) {
			labels = append(labels, label)
		}
	}
	return labels
}
