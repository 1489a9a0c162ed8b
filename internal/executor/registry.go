// Package executor хранит реестр executors: какие типы существуют,
// какие из них обучаемые и какой командой их запускать.
//
// Реестр собирается из встроенных executors и манифеста executors.yaml
// рабочего пространства. Манифест накладывается поверх встроенных.
package executor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// ManifestFile — имя манифеста executors в корне проекта.
const ManifestFile = "executors.yaml"

// ModelAdd — встроенный executor регистрации модели. Выполняется воркером
// без запуска процесса.
const ModelAdd = "model_add"

// ErrNotRegistered — executor с таким именем не зарегистрирован.
var ErrNotRegistered = errors.New("executor is not registered")

// Spec — описание executor'а.
type Spec struct {
	// Name — тип executor'а (значение type в описании pipeline).
	Name string

	// Trainable — executor обучает модель.
	Trainable bool

	// Command — команда запуска в рабочем пространстве.
	// Пустая у встроенных executors, выполняемых внутри воркера.
	Command []string
}

// Registry — реестр executors. Безопасен для конкурентного чтения.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Builtin возвращает реестр встроенных executors.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(Spec{Name: ModelAdd})
	r.Register(Spec{Name: "download", Command: []string{"python", "-m", "download"}})
	r.Register(Spec{Name: "train", Trainable: true, Command: []string{"python", "-m", "train"}})
	r.Register(Spec{Name: "infer", Command: []string{"python", "-m", "infer"}})
	return r
}

// Register добавляет или заменяет executor.
func (r *Registry) Register(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
}

// IsTrainable сообщает, обучает ли executor модель.
func (r *Registry) IsTrainable(name string) bool {
	spec, ok := r.Get(name)
	return ok && spec.Trainable
}

// IsRegistered сообщает, существует ли executor.
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Get возвращает executor по имени.
func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Names возвращает отсортированные имена executors.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Overlay возвращает новый реестр: r, поверх которого наложен other.
// Исходные реестры не меняются.
func (r *Registry) Overlay(other *Registry) *Registry {
	merged := NewRegistry()
	for _, src := range []*Registry{r, other} {
		if src == nil {
			continue
		}
		src.mu.RLock()
		for name, spec := range src.specs {
			merged.specs[name] = spec
		}
		src.mu.RUnlock()
	}
	return merged
}

// manifestEntry — запись executors.yaml.
type manifestEntry struct {
	Trainable bool   `yaml:"trainable"`
	Command   string `yaml:"command"`
}

// LoadManifest читает executors.yaml из каталога dir.
// Отсутствие файла — пустой реестр, не ошибка.
func LoadManifest(dir string) (*Registry, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read executor manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest разбирает содержимое executors.yaml.
func ParseManifest(data []byte) (*Registry, error) {
	var entries map[string]manifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse executor manifest: %w", err)
	}

	r := NewRegistry()
	for name, e := range entries {
		var command []string
		if e.Command != "" {
			parts, err := shlex.Split(e.Command)
			if err != nil {
				return nil, fmt.Errorf("executor %s: command: %w", name, err)
			}
			command = parts
		}
		r.Register(Spec{Name: name, Trainable: e.Trainable, Command: command})
	}
	return r, nil
}
