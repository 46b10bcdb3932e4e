package client

import (
	"encoding/json"
	"os"
	"sync"
)

// Storage persists the active company/store selection between runs.
// Implementations must be safe for concurrent use.
type Storage interface {
	LoadContext() (companyID, storeID string, err error)
	SaveContext(companyID, storeID string) error
}

type memoryStorage struct {
	mu        sync.RWMutex
	companyID string
	storeID   string
}

// NewMemoryStorage keeps the selection for the process lifetime only.
func NewMemoryStorage() Storage {
	return &memoryStorage{}
}

func (s *memoryStorage) LoadContext() (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.companyID, s.storeID, nil
}

func (s *memoryStorage) SaveContext(companyID, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companyID = companyID
	s.storeID = storeID
	return nil
}

type fileStorage struct {
	mu   sync.Mutex
	path string
}

type fileContext struct {
	CompanyID string `json:"company_id"`
	StoreID   string `json:"store_id,omitempty"`
}

// NewFileStorage persists the selection as JSON at path. A missing file
// reads as an empty selection.
func NewFileStorage(path string) Storage {
	return &fileStorage{path: path}
}

func (s *fileStorage) LoadContext() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", err
	}
	var ctx fileContext
	if err := json.Unmarshal(buf, &ctx); err != nil {
		return "", "", err
	}
	return ctx.CompanyID, ctx.StoreID, nil
}

func (s *fileStorage) SaveContext(companyID, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := json.Marshal(fileContext{CompanyID: companyID, StoreID: storeID})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, buf, 0o600)
}
