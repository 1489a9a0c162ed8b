// Package report — реестр раскладок отчётов.
//
// Раскладка — непрозрачная конфигурация, которую ядро только копирует
// в записи отчётов. Имя раскладки — имя файла без расширения.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layouts — набор раскладок отчётов по имени.
type Layouts struct {
	layouts map[string]map[string]any
}

// NewLayouts создаёт реестр из готовой карты.
func NewLayouts(layouts map[string]map[string]any) *Layouts {
	if layouts == nil {
		layouts = make(map[string]map[string]any)
	}
	return &Layouts{layouts: layouts}
}

// Load читает все *.yml и *.yaml из каталога dir.
// Отсутствующий каталог даёт пустой реестр.
func Load(dir string) (*Layouts, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return NewLayouts(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read layouts dir: %w", err)
	}

	layouts := make(map[string]map[string]any)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read layout %s: %w", entry.Name(), err)
		}

		var cfg map[string]any
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse layout %s: %w", entry.Name(), err)
		}
		if cfg == nil {
			cfg = map[string]any{}
		}
		layouts[strings.TrimSuffix(entry.Name(), ext)] = cfg
	}

	return NewLayouts(layouts), nil
}

// Get возвращает раскладку по имени.
func (l *Layouts) Get(name string) (map[string]any, bool) {
	cfg, ok := l.layouts[name]
	return cfg, ok
}

// Names возвращает отсортированные имена раскладок.
func (l *Layouts) Names() []string {
	names := make([]string, 0, len(l.layouts))
	for name := range l.layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
