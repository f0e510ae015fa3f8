package widget

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Clave heredada del slot localStorage original.
const handleKey = "chat_session_id"

// HandleStore persiste el id de la ultima sesion activa del visitante para
// que el widget retome la conversacion tras una recarga. A lo sumo un handle
// por instalacion; ausencia significa "sin sesion", no error.
type HandleStore interface {
	Load() (string, bool, error)
	Save(id string) error
}

type fileHandleStore struct {
	path string
}

// NewFileHandleStore guarda el handle en un archivo unico. Con path vacio usa
// el directorio de configuracion del usuario.
func NewFileHandleStore(path string) (HandleStore, error) {
	if strings.TrimSpace(path) == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "livechat", handleKey)
	}
	return &fileHandleStore{path: path}, nil
}

func (s *fileHandleStore) Load() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", false, nil
	}
	return id, true, nil
}

func (s *fileHandleStore) Save(id string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(id+"\n"), 0o600)
}

type memoryHandleStore struct {
	mu sync.Mutex
	id string
}

// NewMemoryHandleStore es el slot en memoria, para tests.
func NewMemoryHandleStore() HandleStore {
	return &memoryHandleStore{}
}

func (s *memoryHandleStore) Load() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		return "", false, nil
	}
	return s.id, true, nil
}

func (s *memoryHandleStore) Save(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}
