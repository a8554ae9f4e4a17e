package agents

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Extraction is the normalized result of pulling text out of one piece of
// raw content, regardless of which Extractor produced it.
type Extraction struct {
	Title          string
	Text           string
	Summary        string
	Author         string
	PublishedDate  string
	PageCount      int
	DurationSecs   int
	IsThread       bool
}

// Extractor turns raw content into an Extraction. Implementations are
// synchronous; callers that need a deadline wrap the call in a context
// with a timeout.
type Extractor interface {
	Extract(ctx context.Context, content string) (Extraction, error)
}

var titleTagPattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
var tagStripPattern = regexp.MustCompile(`(?is)<[^>]+>`)
var urlTokenPattern = regexp.MustCompile(`https?://[^\s]+`)

// URLExtractor fetches a URL and pulls a title and best-effort plain text
// out of the response body. Real readability/boilerplate-stripping is out
// of scope; this satisfies the Extractor contract without a heavyweight
// HTML parser.
type URLExtractor struct {
	client *http.Client
}

func NewURLExtractor(timeout time.Duration) *URLExtractor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &URLExtractor{client: &http.Client{Timeout: timeout}}
}

func (e *URLExtractor) Extract(ctx context.Context, content string) (Extraction, error) {
	// The body may carry prose around the link ("See https://… for
	// details"); only URL-shaped tokens are fetched.
	urls := urlTokenPattern.FindAllString(content, -1)
	if len(urls) == 0 {
		return Extraction{}, fmt.Errorf("url_processor: no URL in content")
	}

	isThread := len(urls) > 1
	var bodies []string
	var title string
	for _, u := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return Extraction{}, fmt.Errorf("url_processor: building request for %s: %w", u, err)
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return Extraction{}, fmt.Errorf("url_processor: fetching %s: %w", u, err)
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		resp.Body.Close()
		if err != nil {
			return Extraction{}, fmt.Errorf("url_processor: reading %s: %w", u, err)
		}
		html := string(raw)
		if title == "" {
			if m := titleTagPattern.FindStringSubmatch(html); len(m) == 2 {
				title = strings.TrimSpace(m[1])
			}
		}
		bodies = append(bodies, strings.TrimSpace(tagStripPattern.ReplaceAllString(html, " ")))
	}

	return Extraction{
		Title:    title,
		Text:     strings.Join(bodies, "\n\n"),
		IsThread: isThread,
	}, nil
}

// PDFExtractor is a stub satisfying the Extractor contract; real PDF
// parsing is out of scope, so it treats content as already-extracted
// text (e.g. upstream OCR output) and reports a page count of one.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (e *PDFExtractor) Extract(ctx context.Context, content string) (Extraction, error) {
	if strings.TrimSpace(content) == "" {
		return Extraction{}, fmt.Errorf("pdf_processor: empty document")
	}
	return Extraction{
		Title:     "PDF Document",
		Text:      content,
		PageCount: 1,
	}, nil
}

// AudioExtractor is a stub satisfying the Extractor contract; real
// transcription is out of scope, so it passes through any pre-transcribed
// text it's handed.
type AudioExtractor struct{}

func NewAudioExtractor() *AudioExtractor { return &AudioExtractor{} }

func (e *AudioExtractor) Extract(ctx context.Context, content string) (Extraction, error) {
	if strings.TrimSpace(content) == "" {
		return Extraction{}, fmt.Errorf("audio_processor: empty recording")
	}
	return Extraction{
		Title: "Audio Recording",
		Text:  content,
	}, nil
}

// TextExtractor passes plain text through unchanged; the trivial case of
// the Extractor contract.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

func (e *TextExtractor) Extract(ctx context.Context, content string) (Extraction, error) {
	return Extraction{
		Title: "Text Note",
		Text:  content,
	}, nil
}
