package mailbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/utils"
	"go.uber.org/zap"
)

// FileSource reads summaries from a JSON-lines file, one EmailSummary per
// line. The cursor is the number of lines already consumed.
type FileSource struct {
	path        string
	pageSize    int
	previewSize int
	tp          *utils.TextProcessor
	logger      *zap.Logger
}

// NewFileSource creates a file-backed fetcher
func NewFileSource(path string, pageSize, previewSize int, tp *utils.TextProcessor, logger *zap.Logger) *FileSource {
	if pageSize < 1 {
		pageSize = 500
	}
	return &FileSource{path: path, pageSize: pageSize, previewSize: previewSize, tp: tp, logger: logger}
}

// FetchPage returns up to pageSize summaries starting at the cursor line
func (f *FileSource) FetchPage(ctx context.Context, cursor string) (core.Page, error) {
	if err := ctx.Err(); err != nil {
		return core.Page{}, err
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return core.Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = n
	}

	file, err := os.Open(f.path)
	if err != nil {
		return core.Page{}, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var page core.Page
	line := 0
	for scanner.Scan() {
		line++
		if line <= offset {
			continue
		}
		if len(page.Items) == f.pageSize {
			page.NextCursor = strconv.Itoa(line - 1)
			break
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var s core.EmailSummary
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return core.Page{}, fmt.Errorf("%s line %d: %w", f.path, line, err)
		}
		if s.SenderDomain == "" {
			s.SenderDomain = DomainOf(s.Sender)
		}
		s.Preview = f.tp.ProcessText(s.Preview, f.previewSize)
		page.Items = append(page.Items, s)
	}
	if err := scanner.Err(); err != nil {
		return core.Page{}, fmt.Errorf("failed to read input file: %w", err)
	}

	f.logger.Debug("Read input page",
		zap.String("path", f.path),
		zap.Int("offset", offset),
		zap.Int("items", len(page.Items)))
	return page, nil
}

// Delete is not possible on a file source
func (f *FileSource) Delete(_ context.Context, emailID string) error {
	return fmt.Errorf("%w: %s comes from %s", core.ErrDeleteUnsupported, emailID, f.path)
}

// SummaryLabels answers the manual-flag question from the labels carried in
// the summary itself
type SummaryLabels struct {
	manual []string
}

// NewSummaryLabels creates a label state treating any of the given labels as a manual flag
func NewSummaryLabels(manual []string) *SummaryLabels {
	return &SummaryLabels{manual: manual}
}

// HasManualFlag reports whether the item carries one of the manual labels
func (l *SummaryLabels) HasManualFlag(_ context.Context, item core.EmailSummary) (bool, error) {
	for _, label := range l.manual {
		if item.HasLabel(label) {
			return true, nil
		}
	}
	return false, nil
}
