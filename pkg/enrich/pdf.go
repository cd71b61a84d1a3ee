package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/paperscope/paperscope/pkg/source"
)

// maxExtractedChars caps extracted full text; papers beyond this are
// truncated mid-document rather than rejected.
const maxExtractedChars = 400_000

// PDFFetcher downloads and extracts text from linked PDFs.
type PDFFetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewPDFFetcher creates a fetcher that refuses downloads over maxBytes.
func NewPDFFetcher(httpClient *http.Client, maxBytes int64) *PDFFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &PDFFetcher{httpClient: httpClient, maxBytes: maxBytes}
}

// ExtractText downloads the PDF at url and returns its plain text.
// A HEAD probe rejects oversized documents before the body download.
func (f *PDFFetcher) ExtractText(ctx context.Context, url string) (string, error) {
	if size, ok := f.probeSize(ctx, url); ok && size > f.maxBytes {
		return "", fmt.Errorf("pdf too large: %d bytes (limit %d)", size, f.maxBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &source.TransportError{Source: "pdf", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &source.TransportError{Source: "pdf", StatusCode: resp.StatusCode, Message: "fetching " + url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("pdf exceeds %d byte limit", f.maxBytes)
	}
	return extractText(body)
}

func (f *PDFFetcher) probeSize(ctx context.Context, url string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.ContentLength <= 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

func extractText(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, io.LimitReader(plain, maxExtractedChars)); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}
