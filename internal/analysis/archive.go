package analysis

import (
	"context"
	"fmt"
	"html"
	"sort"
	"sync"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/cloud"
)

type ArchiveEntry = cloud.ReportEntry

// Archive keeps generated reports. Save may set rep.ArchiveURL.
type Archive interface {
	Save(ctx context.Context, rep *Report) error
	List(ctx context.Context, deviceID string) ([]ArchiveEntry, error)
}

// ObjectStore is implemented by cloud.S3Client.
type ObjectStore interface {
	UploadReport(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ReportIndex is implemented by cloud.DynamoDBClient.
type ReportIndex interface {
	PutReport(ctx context.Context, entry cloud.ReportEntry) error
	ListReports(ctx context.Context, deviceID string) ([]cloud.ReportEntry, error)
}

// CloudArchive uploads the report page to object storage and records it in
// the index.
type CloudArchive struct {
	objects ObjectStore
	index   ReportIndex
}

func NewCloudArchive(objects ObjectStore, index ReportIndex) *CloudArchive {
	return &CloudArchive{objects: objects, index: index}
}

func (a *CloudArchive) Save(ctx context.Context, rep *Report) error {
	entry := entryFor(rep)
	url, err := a.objects.UploadReport(ctx, entry.ObjectKey, []byte(Page(rep)), "text/html; charset=utf-8")
	if err != nil {
		return fmt.Errorf("upload report: %w", err)
	}
	entry.URL = url
	if err := a.index.PutReport(ctx, entry); err != nil {
		return fmt.Errorf("index report: %w", err)
	}
	rep.ArchiveURL = url
	return nil
}

func (a *CloudArchive) List(ctx context.Context, deviceID string) ([]ArchiveEntry, error) {
	entries, err := a.index.ListReports(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []ArchiveEntry{}
	}
	return entries, nil
}

// MemoryArchive keeps the index in process when cloud services are off.
type MemoryArchive struct {
	mu      sync.RWMutex
	entries map[string][]ArchiveEntry
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{entries: make(map[string][]ArchiveEntry)}
}

func (a *MemoryArchive) Save(_ context.Context, rep *Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[rep.DeviceID] = append(a.entries[rep.DeviceID], entryFor(rep))
	return nil
}

func (a *MemoryArchive) List(_ context.Context, deviceID string) ([]ArchiveEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := append([]ArchiveEntry{}, a.entries[deviceID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].GeneratedAt > out[j].GeneratedAt })
	return out, nil
}

func entryFor(rep *Report) ArchiveEntry {
	return ArchiveEntry{
		DeviceID:        rep.DeviceID,
		GeneratedAt:     rep.GeneratedAt.Unix(),
		ReportID:        rep.ID,
		ReportType:      string(rep.ReportType),
		Period:          rep.Period,
		RecordsAnalyzed: rep.RecordsAnalyzed,
		Fallback:        rep.Fallback,
		ObjectKey:       fmt.Sprintf("reports/%s/%s/%s.html", rep.DeviceID, rep.GeneratedAt.UTC().Format("2006-01-02"), rep.ID),
	}
}

// Page wraps the rendered analysis in a standalone HTML document.
func Page(rep *Report) string {
	title := html.EscapeString(fmt.Sprintf("%s report: %s", rep.ReportType, rep.DeviceID))
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body>
<h1>%s</h1>
<p>Generated %s from %d records</p>
%s
</body></html>
`, title, title, rep.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"), rep.RecordsAnalyzed, rep.HTML)
}
