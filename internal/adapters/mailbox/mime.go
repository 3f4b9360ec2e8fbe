package mailbox

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// ExtractPreview returns the readable text of a raw RFC 5322 message. Plain
// text parts are preferred; an HTML-only message is reduced to its text.
// Attachments are skipped.
func ExtractPreview(raw []byte) (string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer mr.Close()

	var plain, html strings.Builder
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// truncated fetches end mid-part; keep what was read
			if plain.Len() > 0 || html.Len() > 0 {
				break
			}
			return "", err
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil && len(body) == 0 {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"), contentType == "":
			plain.Write(body)
			plain.WriteString("\n")
		case strings.HasPrefix(contentType, "text/html"):
			html.Write(body)
		}
	}

	if plain.Len() > 0 {
		return plain.String(), nil
	}
	if html.Len() > 0 {
		return HTMLToText(html.String())
	}
	return "", nil
}

// HTMLToText drops scripts, styles and markup and returns the visible text
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, head, noscript").Remove()
	doc.Find("br, p, div, tr, li, h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// DomainOf returns the lower-cased domain part of an address
func DomainOf(addr string) string {
	if at := strings.LastIndexByte(addr, '@'); at >= 0 {
		addr = addr[at+1:]
	}
	return strings.ToLower(strings.Trim(strings.TrimSpace(addr), ">."))
}
