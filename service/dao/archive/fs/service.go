// Package fs provides a filesystem-backed archive for terminal workflow
// snapshots and dead-lettered messages.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/toolbox"

	"github.com/viant/docuflow/extension"
	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/runtime/workflow"
)

// Config holds archive settings.
type Config struct {
	// BaseURL is the archive root; any afs-supported scheme works
	// (file://, mem://, s3://).
	BaseURL string `yaml:"baseURL,omitempty"`
}

// DefaultConfig returns an in-memory archive location, suitable for tests.
func DefaultConfig() Config {
	return Config{BaseURL: "mem://localhost/docuflow/archive"}
}

// Service persists workflow snapshots and dead letters as JSON documents.
type Service struct {
	fs            afs.Service
	types         *extension.Types
	workflowDir   string
	deadLetterDir string
	mu            sync.Mutex
}

// New creates an archive rooted at config.BaseURL.
func New(config Config, types *extension.Types) (*Service, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if types == nil {
		types = extension.NewTypes()
	}
	s := &Service{
		fs:            afs.New(),
		types:         types,
		workflowDir:   path.Join(config.BaseURL, "workflows"),
		deadLetterDir: path.Join(config.BaseURL, "deadletter"),
	}
	ctx := context.Background()
	for _, dir := range []string{s.workflowDir, s.deadLetterDir} {
		exists, _ := s.fs.Exists(ctx, dir)
		if !exists {
			if err := s.fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
			}
		}
	}
	return s, nil
}

// SaveWorkflow persists a terminal workflow snapshot.
func (s *Service) SaveWorkflow(ctx context.Context, snapshot *workflow.Snapshot) error {
	if snapshot == nil || snapshot.DocumentID == "" {
		return fmt.Errorf("snapshot was empty")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", snapshot.DocumentID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := path.Join(s.workflowDir, snapshot.DocumentID+".json")
	return s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewBuffer(data))
}

// LoadWorkflow reads back an archived workflow snapshot.
func (s *Service) LoadWorkflow(ctx context.Context, documentID string) (*workflow.Snapshot, error) {
	URL := path.Join(s.workflowDir, documentID+".json")
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", documentID, err)
	}
	var snapshot workflow.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", documentID, err)
	}
	return &snapshot, nil
}

// ListWorkflows returns the document ids of all archived workflows.
func (s *Service) ListWorkflows(ctx context.Context) ([]string, error) {
	objects, err := s.fs.List(ctx, s.workflowDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived workflows: %w", err)
	}
	var ids []string
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(object.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveDeadLetter persists an undeliverable message for offline inspection.
func (s *Service) SaveDeadLetter(ctx context.Context, message *model.Message) error {
	if message == nil || message.ID == "" {
		return fmt.Errorf("message was empty")
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter %s: %w", message.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := path.Join(s.deadLetterDir, message.ID+".json")
	return s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewBuffer(data))
}

// DeadLetters reads back all archived dead letters; payloads are decoded to
// their registered concrete types where the message type is known.
func (s *Service) DeadLetters(ctx context.Context) ([]*model.Message, error) {
	objects, err := s.fs.List(ctx, s.deadLetterDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	var files []storage.Object
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			files = append(files, object)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})
	var messages []*model.Message
	for _, object := range files {
		data, err := s.fs.DownloadWithURL(ctx, object.URL())
		if err != nil {
			return nil, fmt.Errorf("failed to read dead letter %s: %w", object.URL(), err)
		}
		var message model.Message
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter %s: %w", object.URL(), err)
		}
		if err := s.decodePayload(&message); err != nil {
			return nil, err
		}
		messages = append(messages, &message)
	}
	return messages, nil
}

// decodePayload rebuilds the concrete payload type after a JSON round trip.
func (s *Service) decodePayload(message *model.Message) error {
	if message.Payload == nil {
		return nil
	}
	payloadType, ok := s.types.PayloadType(message.Type)
	if !ok {
		return nil
	}
	payload := reflect.New(payloadType.Type).Interface()
	if err := toolbox.DefaultConverter.AssignConverted(payload, message.Payload); err != nil {
		return fmt.Errorf("failed to decode payload of %s: %w", message.ID, err)
	}
	message.Payload = payload
	return nil
}
