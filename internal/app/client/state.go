package client

import (
	"encoding/json"
	"os"
	"time"
)

// staleProcessingAfter срок, после которого персистентный флаг
// "идет обработка" считается оставшимся от аварийного завершения
const staleProcessingAfter = 5 * time.Minute

// StateStore - хранилище персистентного состояния процессора
type StateStore interface {
	Load() (*SyncState, error)
	Save(state *SyncState) error
}

// fileStateStore хранит состояние в JSON-файле рядом с конфигурацией
type fileStateStore struct {
	path string
}

func NewFileStateStore(path string) StateStore {
	return &fileStateStore{path: path}
}

func (f *fileStateStore) Load() (*SyncState, error) {
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return &SyncState{}, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}

	// Флаг обработки, оставшийся от упавшего процесса, сбрасываем
	if state.Processing && time.Since(state.ProcessingAt) > staleProcessingAfter {
		state.Processing = false
	}

	return &state, nil
}

func (f *fileStateStore) Save(state *SyncState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(f.path, data, 0600)
}

// memStateStore хранит состояние в памяти, для тестов
type memStateStore struct {
	state SyncState
}

func NewMemStateStore() StateStore {
	return &memStateStore{}
}

func (m *memStateStore) Load() (*SyncState, error) {
	copied := m.state
	return &copied, nil
}

func (m *memStateStore) Save(state *SyncState) error {
	m.state = *state
	return nil
}
