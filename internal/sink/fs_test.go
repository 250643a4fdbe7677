package sink

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitegrab/sitegrab/internal/extract"
	"github.com/sitegrab/sitegrab/internal/hash/sha256"
	"github.com/sitegrab/sitegrab/internal/scraper"
)

func newTestFS(t *testing.T) (*FS, string) {
	t.Helper()
	root := t.TempDir()
	s, err := NewFS(root, sha256.New(), zap.NewNop())
	require.NoError(t, err)
	return s, root
}

func TestNewFSCreatesLayout(t *testing.T) {
	t.Parallel()

	_, root := newTestFS(t)
	for _, dir := range []string{"html", "text", "data"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestSaveHTMLAndText(t *testing.T) {
	t.Parallel()

	s, root := newTestFS(t)

	htmlPath, err := s.SaveHTML("https://example.com/page", []byte("<html>x</html>"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(filepath.Base(htmlPath), "example.com_"))
	require.True(t, strings.HasPrefix(htmlPath, filepath.Join(root, "html")))

	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	require.Equal(t, "<html>x</html>", string(data))

	textPath, err := s.SaveText("https://example.com/page", "extracted text")
	require.NoError(t, err)
	data, err = os.ReadFile(textPath)
	require.NoError(t, err)
	require.Equal(t, "extracted text", string(data))
}

func TestSaveHTMLRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	s, _ := newTestFS(t)
	_, err := s.SaveHTML("https://example.com", nil)
	require.Error(t, err)
}

func TestSafeFilenameDistinguishesURLsOnSameHost(t *testing.T) {
	t.Parallel()

	s, _ := newTestFS(t)
	a := s.safeFilename("https://example.com/a")
	b := s.safeFilename("https://example.com/b")
	require.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, "example.com_"))
}

func TestWriteResults(t *testing.T) {
	t.Parallel()

	s, root := newTestFS(t)
	docs := []extract.Document{
		{
			URL:        "https://example.com",
			Title:      "Example",
			StatusCode: 200,
			FetchedAt:  time.Unix(1700000000, 0).UTC(),
			Text:       "hello",
			Links:      []string{"/a", "/b"},
		},
	}
	require.NoError(t, s.WriteResults(docs))

	raw, err := os.ReadFile(filepath.Join(root, "data", "results.json"))
	require.NoError(t, err)
	var decoded []extract.Document
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, "Example", decoded[0].Title)

	f, err := os.Open(filepath.Join(root, "data", "results.csv"))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"url", "title", "status_code", "timestamp", "link_count", "text_length"}, rows[0])
	require.Equal(t, "https://example.com", rows[1][0])
	require.Equal(t, "2", rows[1][4])
}

func TestWriteFailuresSkippedWhenEmpty(t *testing.T) {
	t.Parallel()

	s, root := newTestFS(t)
	require.NoError(t, s.WriteFailures(nil))
	_, err := os.Stat(filepath.Join(root, "data", "failed_urls.json"))
	require.True(t, os.IsNotExist(err))
}

func TestWriteFailures(t *testing.T) {
	t.Parallel()

	s, root := newTestFS(t)
	failures := []scraper.Failure{
		{URL: "https://down.test", LastError: "connection refused", AttemptsMade: 3},
	}
	require.NoError(t, s.WriteFailures(failures))

	raw, err := os.ReadFile(filepath.Join(root, "data", "failed_urls.json"))
	require.NoError(t, err)
	var decoded []scraper.Failure
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, 3, decoded[0].AttemptsMade)
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	s, root := newTestFS(t)
	report := Report{
		RunID:           "run-1",
		TotalURLs:       3,
		Successful:      2,
		Failed:          1,
		DurationSeconds: 4.2,
		Timestamp:       time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, s.WriteReport(report))

	raw, err := os.ReadFile(filepath.Join(root, "data", "report.json"))
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, report, decoded)
}
