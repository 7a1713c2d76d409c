package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/happyhackingspace/exon/batch"
)

// Storage wraps a data folder holding problem, model and sequence files.
// Relative paths are resolved against Folder.
type Storage struct {
	Folder string
}

// NewStorage creates a Storage for the given data folder.
func NewStorage(folder string) *Storage {
	return &Storage{Folder: folder}
}

func (s *Storage) path(name string) string {
	if filepath.IsAbs(name) || s.Folder == "" {
		return name
	}
	return filepath.Join(s.Folder, name)
}

// unmarshal decodes JSON files by extension and everything else as YAML.
func unmarshal(path string, data []byte, v any) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

// LoadProblem reads a problem file. Genome paths inside it are relative
// to the problem file's directory.
func (s *Storage) LoadProblem(name string) (*Problem, error) {
	path := s.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Problem
	if err := unmarshal(path, data, &p); err != nil {
		return nil, fmt.Errorf("parse problem %s: %w", path, err)
	}
	p.dir = filepath.Dir(path)
	return &p, nil
}

// LoadBatchModel reads and validates a weighted-degree model file.
func (s *Storage) LoadBatchModel(name string) (*batch.Model, error) {
	path := s.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m batch.Model
	if err := unmarshal(path, data, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadSequences reads the sequences to score. Files starting with '>' are
// read as FASTA; otherwise every non-empty line is one sequence.
func (s *Storage) LoadSequences(name string) ([]Record, error) {
	path := s.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(">")) {
		return ReadFASTA(bytes.NewReader(data))
	}

	var records []Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<26)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		records = append(records, Record{
			ID:       fmt.Sprintf("seq%d", len(records)+1),
			Sequence: []byte(line),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read sequences %s: %w", path, err)
	}
	return records, nil
}

// Run is the envelope written around every result file.
type Run struct {
	ID      string    `json:"run_id"`
	Command string    `json:"command"`
	Input   string    `json:"input"`
	Created time.Time `json:"created"`
	Result  any       `json:"result"`
}

// NewRun stamps a result with a fresh run id.
func NewRun(command, input string, result any) *Run {
	return &Run{
		ID:      uuid.NewString(),
		Command: command,
		Input:   input,
		Created: time.Now().UTC(),
		Result:  result,
	}
}

// SaveJSON writes v as indented JSON.
func (s *Storage) SaveJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(name)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadRun reads a result file written by SaveJSON, decoding its result
// into result.
func (s *Storage) LoadRun(name string, result any) (*Run, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, err
	}
	var raw struct {
		Run
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse run %s: %w", name, err)
	}
	if _, err := uuid.Parse(raw.Run.ID); err != nil {
		return nil, fmt.Errorf("parse run %s: bad run id: %w", name, err)
	}
	if result != nil && len(raw.Result) > 0 {
		if err := json.Unmarshal(raw.Result, result); err != nil {
			return nil, fmt.Errorf("parse run %s: %w", name, err)
		}
	}
	run := raw.Run
	run.Result = result
	return &run, nil
}
