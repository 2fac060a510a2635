package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/huihuang/mdaqa/internal/domain"
)

// Artifact file names inside the output directory.
const (
	GeneratedFile = "generated_questions.json"
	EvaluatedFile = "evaluated_questions.json"
	DatasetFile   = "dataset.json"
	AuditFile     = "audit.jsonl"
)

// GeneratedArtifact is one persisted generation result, keyed by community
// so an interrupted run can resume without regenerating finished work.
type GeneratedArtifact struct {
	CommunityID int              `json:"community_id"`
	Candidate   domain.Candidate `json:"candidate"`
}

// EvaluatedArtifact is one persisted evaluation result.
type EvaluatedArtifact struct {
	CommunityID int                     `json:"community_id"`
	Result      domain.EvaluationResult `json:"result"`
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadGenerated reads the generation artifact from dir. A missing file is
// not an error; it simply means nothing was generated yet.
func LoadGenerated(dir string) ([]GeneratedArtifact, error) {
	var artifacts []GeneratedArtifact
	err := readJSON(filepath.Join(dir, GeneratedFile), &artifacts)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

// SaveGenerated writes the generation artifact atomically.
func SaveGenerated(dir string, artifacts []GeneratedArtifact) error {
	return writeJSON(filepath.Join(dir, GeneratedFile), artifacts)
}

// LoadEvaluated reads the evaluation artifact from dir, tolerating absence.
func LoadEvaluated(dir string) ([]EvaluatedArtifact, error) {
	var artifacts []EvaluatedArtifact
	err := readJSON(filepath.Join(dir, EvaluatedFile), &artifacts)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

// SaveEvaluated writes the evaluation artifact atomically.
func SaveEvaluated(dir string, artifacts []EvaluatedArtifact) error {
	return writeJSON(filepath.Join(dir, EvaluatedFile), artifacts)
}

// SaveDataset writes the final dataset atomically.
func SaveDataset(dir string, entries []domain.DatasetEntry) error {
	return writeJSON(filepath.Join(dir, DatasetFile), entries)
}

// AuditEntry is one line of the audit log: a community that was skipped or
// an entry that was dropped, with the stage and reason.
type AuditEntry struct {
	CommunityID int    `json:"community_id"`
	Stage       string `json:"stage"`
	Reason      string `json:"reason"`
	Question    string `json:"question,omitempty"`
}

// AuditLog appends JSONL records describing skipped work. It is safe for
// concurrent use.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenAuditLog opens (or creates) the audit log in dir for appending.
func OpenAuditLog(dir string) (*AuditLog, error) {
	file, err := os.OpenFile(filepath.Join(dir, AuditFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &AuditLog{file: file, enc: json.NewEncoder(file)}, nil
}

// Record appends one entry.
func (l *AuditLog) Record(entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(entry)
}

// Close releases the underlying file.
func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
