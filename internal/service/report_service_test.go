package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/repository"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/export"
	"github.com/aidly/aidly-api/pkg/storage"
)

type memoryReportStore struct {
	mu         sync.Mutex
	reports    map[string]*models.Report
	executions map[string]*models.ReportExecution
	updateErr  error
	seq        int
}

func newMemoryReportStore(reports ...*models.Report) *memoryReportStore {
	store := &memoryReportStore{reports: map[string]*models.Report{}, executions: map[string]*models.ReportExecution{}}
	for _, r := range reports {
		store.reports[r.ID] = r
	}
	return store
}

func (m *memoryReportStore) GetReport(_ context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	return r, nil
}

func (m *memoryReportStore) CreateExecution(_ context.Context, exec *models.ReportExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if exec.ID == "" {
		exec.ID = fmt.Sprintf("exec-%02d", m.seq)
	}
	cp := *exec
	m.executions[exec.ID] = &cp
	return nil
}

func (m *memoryReportStore) UpdateExecution(_ context.Context, id string, p repository.UpdateExecutionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil && p.Status != nil && *p.Status == models.ExecutionStatusCompleted {
		return m.updateErr
	}
	exec, ok := m.executions[id]
	if !ok {
		return errors.New("missing execution")
	}
	if p.Status != nil {
		exec.Status = *p.Status
	}
	if p.RowCount != nil {
		exec.RowCount = *p.RowCount
	}
	if p.FilePath != nil {
		exec.FilePath = p.FilePath
	}
	if p.FileSize != nil {
		exec.FileSize = *p.FileSize
	}
	if p.ErrorMessage != nil {
		exec.ErrorMessage = p.ErrorMessage
	}
	if p.CompletedAt != nil {
		exec.CompletedAt = p.CompletedAt
	}
	return nil
}

func (m *memoryReportStore) GetExecution(_ context.Context, id string) (*models.ReportExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "execution not found")
	}
	cp := *exec
	return &cp, nil
}

func (m *memoryReportStore) newest(reportID string) []*models.ReportExecution {
	var out []*models.ReportExecution
	for _, e := range m.executions {
		if e.ReportID == reportID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (m *memoryReportStore) ListExecutions(_ context.Context, reportID string, limit int) ([]models.ReportExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReportExecution
	for i, e := range m.newest(reportID) {
		if i == limit {
			break
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memoryReportStore) PruneExecutions(_ context.Context, reportID string, keep int) ([]string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	deleted := 0
	for i, e := range m.newest(reportID) {
		if i < keep {
			continue
		}
		if e.HasFile() {
			paths = append(paths, *e.FilePath)
		}
		delete(m.executions, e.ID)
		deleted++
	}
	return paths, deleted, nil
}

func (m *memoryReportStore) count(reportID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.newest(reportID))
}

type stubRunner struct {
	dataset export.Dataset
	err     error
	params  map[string]interface{}
}

func (s *stubRunner) Run(_ context.Context, _ *models.Report, params map[string]interface{}) (export.Dataset, error) {
	s.params = params
	return s.dataset, s.err
}

func testReport() *models.Report {
	return &models.Report{
		ID:            "rep-1",
		Name:          "Open tickets",
		QueryTemplate: "SELECT id, subject FROM tickets WHERE status = :status",
		Parameters:    models.JSONMap{"status": "open"},
		Format:        models.ReportFormatCSV,
	}
}

func newReportServiceForTest(t *testing.T, store *memoryReportStore, runner queryRunner) (*ReportService, *storage.LocalStorage) {
	t.Helper()
	exporter, files := newExportServiceForTest(t)
	svc := NewReportService(store, runner, exporter, nil, zap.NewNop(), ReportServiceConfig{Timeout: time.Minute})
	return svc, files
}

func TestReportServiceExecuteCSV(t *testing.T) {
	store := newMemoryReportStore(testReport())
	runner := &stubRunner{dataset: sampleDataset()}
	svc, files := newReportServiceForTest(t, store, runner)

	exec, err := svc.Execute(context.Background(), "rep-1", ExecuteOptions{Params: map[string]interface{}{"status": "new"}})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, 2, exec.RowCount)
	assert.Equal(t, models.TriggerManual, exec.TriggeredBy)
	require.True(t, exec.HasFile())
	assert.True(t, files.Exists(*exec.FilePath))
	assert.True(t, strings.HasPrefix(exec.DownloadURL, "/api/v1/export/"))
	assert.Equal(t, "new", runner.params["status"])

	stored, err := store.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, *exec.FilePath, *stored.FilePath)
}

func TestReportServiceExecuteJSONProducesNoFile(t *testing.T) {
	store := newMemoryReportStore(testReport())
	svc, _ := newReportServiceForTest(t, store, &stubRunner{dataset: sampleDataset()})

	exec, err := svc.Execute(context.Background(), "rep-1", ExecuteOptions{Format: models.ReportFormatJSON})
	require.NoError(t, err)
	assert.False(t, exec.HasFile())
	assert.Empty(t, exec.DownloadURL)
	require.Len(t, exec.Result, 2)
	assert.Equal(t, "VPN down", exec.Result[1]["subject"])
}

func TestReportServiceExecuteFailureReturnsFailedExecution(t *testing.T) {
	store := newMemoryReportStore(testReport())
	svc, _ := newReportServiceForTest(t, store, &stubRunner{err: errors.New("relation \"tickets\" does not exist")})

	exec, err := svc.Execute(context.Background(), "rep-1", ExecuteOptions{TriggeredBy: models.TriggerScheduled})
	require.Error(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, models.ExecutionStatusFailed, exec.Status)
	require.NotNil(t, exec.ErrorMessage)
	assert.Contains(t, *exec.ErrorMessage, "does not exist")

	stored, err := store.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestReportServiceExecuteUnknownReport(t *testing.T) {
	svc, _ := newReportServiceForTest(t, newMemoryReportStore(), &stubRunner{})
	exec, err := svc.Execute(context.Background(), "missing", ExecuteOptions{})
	assert.Nil(t, exec)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestReportServiceExecuteRejectsUnknownFormat(t *testing.T) {
	store := newMemoryReportStore(testReport())
	svc, _ := newReportServiceForTest(t, store, &stubRunner{})
	_, err := svc.Execute(context.Background(), "rep-1", ExecuteOptions{Format: "docx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, store.count("rep-1"))
}

func TestReportServiceExportReturnsRenderedFile(t *testing.T) {
	store := newMemoryReportStore(testReport())
	svc, _ := newReportServiceForTest(t, store, &stubRunner{dataset: sampleDataset()})

	exec, file, err := svc.Export(context.Background(), "rep-1", ExecuteOptions{Format: models.ReportFormatJSON})
	require.NoError(t, err)
	assert.Equal(t, models.TriggerExport, exec.TriggeredBy)
	require.NotNil(t, file)
	assert.Equal(t, "application/json", file.ContentType)
	assert.Contains(t, string(file.Data), "Printer on fire")
}

func TestReportServicePruneKeepsNewestAndDeletesFiles(t *testing.T) {
	store := newMemoryReportStore(testReport())
	svc, files := newReportServiceForTest(t, store, &stubRunner{dataset: sampleDataset()})

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var oldest []string
	for i := 0; i < 32; i++ {
		started := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return started }
		exec, err := svc.Execute(context.Background(), "rep-1", ExecuteOptions{})
		require.NoError(t, err)
		if i < 2 {
			oldest = append(oldest, *exec.FilePath)
		}
	}
	require.Equal(t, 32, store.count("rep-1"))

	removed, err := svc.Prune(context.Background(), "rep-1", 30)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 30, store.count("rep-1"))
	for _, path := range oldest {
		assert.False(t, files.Exists(path), path)
	}
}

func TestReportServicePruneCountsRowsWithoutFiles(t *testing.T) {
	store := newMemoryReportStore(testReport())
	svc, _ := newReportServiceForTest(t, store, &stubRunner{dataset: sampleDataset()})

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		started := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return started }
		format := models.ReportFormatJSON
		if i == 0 {
			format = models.ReportFormatCSV
		}
		_, err := svc.Execute(context.Background(), "rep-1", ExecuteOptions{Format: format})
		require.NoError(t, err)
	}

	removed, err := svc.Prune(context.Background(), "rep-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 2, store.count("rep-1"))
}

func TestReportServiceExecuteRemovesFileWhenCompletionNotRecorded(t *testing.T) {
	store := newMemoryReportStore(testReport())
	store.updateErr = errors.New("connection reset by peer")
	svc, files := newReportServiceForTest(t, store, &stubRunner{dataset: sampleDataset()})

	exec, err := svc.Execute(context.Background(), "rep-1", ExecuteOptions{})
	require.Error(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, models.ExecutionStatusFailed, exec.Status)
	assert.False(t, exec.HasFile())
	assert.Empty(t, exec.DownloadURL)

	stored, err := store.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Nil(t, stored.FilePath)

	written := exec.ID + "_" + svc.exporter.buildFilename(testReport().Name, models.ReportFormatCSV)
	assert.False(t, files.Exists(written), written)
}

func TestReportServiceResolveDownload(t *testing.T) {
	store := newMemoryReportStore(testReport())
	svc, _ := newReportServiceForTest(t, store, &stubRunner{dataset: sampleDataset()})

	exec, err := svc.Execute(context.Background(), "rep-1", ExecuteOptions{})
	require.NoError(t, err)
	token := strings.TrimPrefix(exec.DownloadURL, "/api/v1/export/")

	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Printer on fire")
	assert.Equal(t, models.ReportFormatCSV, download.Format)
	assert.Equal(t, "text/csv", download.ContentType)
	assert.False(t, strings.HasPrefix(download.Filename, exec.ID))

	_, err = svc.ResolveDownload(context.Background(), token+"x")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestReportServiceReadOutputStripsExecutionPrefix(t *testing.T) {
	store := newMemoryReportStore(testReport())
	svc, _ := newReportServiceForTest(t, store, &stubRunner{dataset: sampleDataset()})

	exec, err := svc.Execute(context.Background(), "rep-1", ExecuteOptions{})
	require.NoError(t, err)
	file, err := svc.ReadOutput(exec)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.False(t, strings.HasPrefix(file.Filename, exec.ID))
	assert.Contains(t, string(file.Data), "VPN down")

	_, err = svc.ReadOutput(&models.ReportExecution{ID: "x"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
