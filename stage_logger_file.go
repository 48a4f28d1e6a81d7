package invoiceflow

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStageLogger writes one newline-delimited JSON file per instance.
type FileStageLogger struct {
	directory string
}

func NewFileStageLogger(directory string) *FileStageLogger {
	return &FileStageLogger{directory: directory}
}

func (l *FileStageLogger) instanceLogPath(instanceID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", instanceID))
}

func (l *FileStageLogger) GetStageHistory(ctx context.Context, instanceID string) ([]*StageLogEntry, error) {
	if !isPathElement(instanceID) {
		return nil, ErrInstanceNotFound
	}
	f, err := os.Open(l.instanceLogPath(instanceID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*StageLogEntry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []*StageLogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry StageLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, scanner.Err()
}

func (l *FileStageLogger) LogStage(ctx context.Context, entry *StageLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	filePath := l.instanceLogPath(entry.InstanceID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// NullStageLogger discards entries.
type NullStageLogger struct{}

func NewNullStageLogger() *NullStageLogger {
	return &NullStageLogger{}
}

func (l *NullStageLogger) LogStage(ctx context.Context, entry *StageLogEntry) error {
	return nil
}

func (l *NullStageLogger) GetStageHistory(ctx context.Context, instanceID string) ([]*StageLogEntry, error) {
	return []*StageLogEntry{}, nil
}

var (
	_ StageLogger = (*FileStageLogger)(nil)
	_ StageLogger = (*NullStageLogger)(nil)
)
