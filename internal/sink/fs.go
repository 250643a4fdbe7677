// Package sink persists batch results to the local filesystem. The engine's
// obligation ends at the in-memory BatchResult; everything durable lives here.
package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sitegrab/sitegrab/internal/extract"
	"github.com/sitegrab/sitegrab/internal/scraper"
)

// Subdirectories created under the output root.
const (
	htmlDir = "html"
	textDir = "text"
	dataDir = "data"
)

// Hasher names files deterministically from page bodies or URLs.
type Hasher interface {
	Short(data []byte, n int) string
}

// Report summarizes one batch run for the data/report.json artifact.
type Report struct {
	RunID           string    `json:"run_id"`
	TotalURLs       int       `json:"total_urls"`
	Successful      int       `json:"successful_scrapes"`
	Failed          int       `json:"failed_scrapes"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// FS writes HTML snapshots, extracted text, and result collections under a
// single output root.
type FS struct {
	root   string
	hasher Hasher
	logger *zap.Logger
}

// NewFS creates the output directory layout and returns a sink rooted there.
func NewFS(root string, hasher Hasher, logger *zap.Logger) (*FS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, dir := range []string{root, filepath.Join(root, htmlDir), filepath.Join(root, textDir), filepath.Join(root, dataDir)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sink dir %s: %w", dir, err)
		}
	}
	return &FS{root: root, hasher: hasher, logger: logger}, nil
}

// SaveHTML writes one raw HTML snapshot and returns its path.
func (s *FS) SaveHTML(pageURL string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty page body for %s", pageURL)
	}
	target := filepath.Join(s.root, htmlDir, s.safeFilename(pageURL)+".html")
	if err := os.WriteFile(target, body, 0o600); err != nil {
		return "", fmt.Errorf("write html %s: %w", target, err)
	}
	return target, nil
}

// SaveText writes the extracted text of one page and returns its path.
func (s *FS) SaveText(pageURL string, text string) (string, error) {
	target := filepath.Join(s.root, textDir, s.safeFilename(pageURL)+".txt")
	if err := os.WriteFile(target, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write text %s: %w", target, err)
	}
	return target, nil
}

// WriteResults stores the extracted documents as data/results.json and
// data/results.csv.
func (s *FS) WriteResults(docs []extract.Document) error {
	if err := s.writeJSON(filepath.Join(dataDir, "results.json"), docs); err != nil {
		return err
	}
	return s.writeCSV(docs)
}

// WriteFailures stores the failure ledger as data/failed_urls.json. Nothing
// is written when the batch had no failures.
func (s *FS) WriteFailures(failures []scraper.Failure) error {
	if len(failures) == 0 {
		return nil
	}
	return s.writeJSON(filepath.Join(dataDir, "failed_urls.json"), failures)
}

// WriteReport stores the run summary as data/report.json.
func (s *FS) WriteReport(report Report) error {
	return s.writeJSON(filepath.Join(dataDir, "report.json"), report)
}

func (s *FS) writeJSON(rel string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rel, err)
	}
	target := filepath.Join(s.root, rel)
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

func (s *FS) writeCSV(docs []extract.Document) error {
	target := filepath.Join(s.root, dataDir, "results.csv")
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("close csv failed", zap.Error(cerr))
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"url", "title", "status_code", "timestamp", "link_count", "text_length"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, doc := range docs {
		row := []string{
			doc.URL,
			doc.Title,
			strconv.Itoa(doc.StatusCode),
			doc.FetchedAt.Format(time.RFC3339),
			strconv.Itoa(len(doc.Links)),
			strconv.Itoa(len(doc.Text)),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", doc.URL, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// safeFilename converts a URL into "host_digest" so distinct URLs on the
// same host never collide.
func (s *FS) safeFilename(rawURL string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return host + "_" + s.hasher.Short([]byte(rawURL), 12)
}
