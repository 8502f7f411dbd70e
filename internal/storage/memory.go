package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"labflow/internal/models"
	"labflow/internal/status"
	"labflow/internal/util"
)

// MemoryStore keeps every table in process memory. It backs tests and the
// database-less dev mode, and applies the same merge rules as the SQL repos.
type MemoryStore struct {
	mu        sync.Mutex
	files     map[string]models.FileJob
	fileOrder []string
	statuses  map[statusKey]models.FileStatusRecord
	order     []statusKey
	summaries map[string]models.SessionSummary
	patients  map[patientKey]models.Patient
	reports   []models.LabReport
	results   []models.TestResult
	snapshots []models.ParsedDocumentSnapshot
	calls     []models.LLMCall
}

type statusKey struct{ fileID, sessionID string }

type patientKey struct{ userID, name string }

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:     map[string]models.FileJob{},
		statuses:  map[statusKey]models.FileStatusRecord{},
		summaries: map[string]models.SessionSummary{},
		patients:  map[patientKey]models.Patient{},
	}
}

func (m *MemoryStore) RegisterFile(_ context.Context, f models.FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[f.FileID]; ok {
		return fmt.Errorf("insert uploaded file: duplicate file_id %s", f.FileID)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	m.files[f.FileID] = f
	m.fileOrder = append(m.fileOrder, f.FileID)
	return nil
}

func (m *MemoryStore) GetFile(_ context.Context, fileID string) (models.FileJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileID]
	if !ok {
		return models.FileJob{}, fmt.Errorf("get file %s: %w", fileID, util.ErrFileNotFound)
	}
	return f, nil
}

func (m *MemoryStore) ListSessionFiles(_ context.Context, sessionID string) ([]models.FileJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.FileJob, 0)
	for _, id := range m.fileOrder {
		if f := m.files[id]; f.SessionID == sessionID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertStatus(_ context.Context, rec models.FileStatusRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := statusKey{rec.FileID, rec.SessionID}
	var existing *models.FileStatusRecord
	if cur, ok := m.statuses[key]; ok {
		existing = &cur
	} else {
		m.order = append(m.order, key)
	}
	merged, applied := status.Merge(existing, rec)
	if applied {
		m.statuses[key] = merged
	}
	return applied, nil
}

func (m *MemoryStore) ResetStatus(_ context.Context, fileID, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := statusKey{fileID, sessionID}
	cur, ok := m.statuses[key]
	if !ok || cur.Status != models.StatusFailed || !cur.IsRetryable {
		return false, nil
	}
	reset := status.ResetRecord(cur)
	reset.UpdatedAt = time.Now().UTC()
	m.statuses[key] = reset
	return true, nil
}

func (m *MemoryStore) GetStatus(_ context.Context, fileID, sessionID string) (*models.FileStatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.statuses[statusKey{fileID, sessionID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) ListSessionStatuses(_ context.Context, sessionID string) ([]models.FileStatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.FileStatusRecord, 0)
	for _, key := range m.order {
		if key.sessionID == sessionID {
			out = append(out, m.statuses[key])
		}
	}
	return out, nil
}

// RefreshSessionSummary recomputes the session aggregate under the store lock.
func (m *MemoryStore) RefreshSessionSummary(_ context.Context, sessionID string) (models.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]models.FileStatusRecord, 0)
	for _, key := range m.order {
		if key.sessionID == sessionID {
			recs = append(recs, m.statuses[key])
		}
	}
	s := status.Summarize(sessionID, recs)
	s.UpdatedAt = time.Now().UTC()
	m.summaries[sessionID] = s
	return s, nil
}

func (m *MemoryStore) GetSessionSummary(_ context.Context, sessionID string) (*models.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[sessionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) FindPatient(_ context.Context, userID, name string) (*models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[patientKey{userID, name}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) CreatePatient(_ context.Context, p models.Patient) (models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := patientKey{p.UserID, p.Name}
	if existing, ok := m.patients[key]; ok {
		return existing, nil
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	m.patients[key] = p
	return p, nil
}

func (m *MemoryStore) InsertLabReport(_ context.Context, rep models.LabReport) (models.LabReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	rep.CreatedAt = time.Now().UTC()
	m.reports = append(m.reports, rep)
	return rep, nil
}

func (m *MemoryStore) InsertTestResult(_ context.Context, t models.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.results = append(m.results, t)
	return nil
}

func (m *MemoryStore) ListTestResults(_ context.Context, labReportID string) ([]models.TestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TestResult, 0)
	for _, t := range m.results {
		if t.LabReportID == labReportID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListReportsByFile(_ context.Context, fileID string) ([]models.LabReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LabReport, 0)
	for _, r := range m.reports {
		if r.FileID == fileID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertSnapshot(_ context.Context, s models.ParsedDocumentSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *MemoryStore) LatestSnapshot(_ context.Context, fileID string) (models.ParsedDocumentSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if m.snapshots[i].FileID == fileID {
			return m.snapshots[i], nil
		}
	}
	return models.ParsedDocumentSnapshot{}, fmt.Errorf("latest parsed document: no snapshot for %s", fileID)
}

func (m *MemoryStore) Insert(_ context.Context, rec models.LLMCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CallID == "" {
		rec.CallID = uuid.NewString()
	}
	m.calls = append(m.calls, rec)
	return nil
}

// Patients returns every stored patient ordered by name.
func (m *MemoryStore) Patients() []models.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *MemoryStore) Reports() []models.LabReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LabReport(nil), m.reports...)
}

func (m *MemoryStore) Snapshots() []models.ParsedDocumentSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ParsedDocumentSnapshot(nil), m.snapshots...)
}

func (m *MemoryStore) Calls() []models.LLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LLMCall(nil), m.calls...)
}
