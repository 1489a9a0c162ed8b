package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Файлы, в которых объявляются библиотеки.
const (
	requirementsFile = "requirements.txt"
	goModFile        = "go.mod"
)

// versionOperators — операторы версии requirements.txt; длинные раньше коротких.
var versionOperators = []string{"===", "==", ">=", "<=", "~=", "!=", ">", "<"}

// DetectLibraries ищет объявления библиотек среди файлов paths.
// Повторное объявление той же библиотеки учитывается один раз.
func DetectLibraries(paths []string) ([]domain.Library, error) {
	var libs []domain.Library
	seen := make(map[string]bool)

	add := func(found []domain.Library) {
		for _, lib := range found {
			if seen[lib.Name] {
				continue
			}
			seen[lib.Name] = true
			libs = append(libs, lib)
		}
	}

	for _, path := range paths {
		switch filepath.Base(path) {
		case requirementsFile:
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			add(ParseRequirements(data))
		case goModFile:
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			found, err := ParseGoMod(path, data)
			if err != nil {
				return nil, err
			}
			add(found)
		}
	}

	return libs, nil
}

// ParseRequirements разбирает requirements.txt.
//
// name==1.0 и name>=1.0 записывают версию 1.0, имя без версии — пустую.
// Комментарии, опции (-r, --index-url) и маркеры окружения пропускаются.
func ParseRequirements(data []byte) []domain.Library {
	var libs []domain.Library

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		if i := strings.Index(line, ";"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}

		name, version := line, ""
		for _, op := range versionOperators {
			if i := strings.Index(line, op); i >= 0 {
				name = line[:i]
				version = strings.TrimSpace(line[i+len(op):])
				if j := strings.Index(version, ","); j >= 0 {
					version = strings.TrimSpace(version[:j])
				}
				break
			}
		}
		if i := strings.Index(name, "["); i >= 0 {
			name = name[:i]
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		libs = append(libs, domain.Library{Name: name, Version: version})
	}

	return libs
}

// ParseGoMod возвращает require-зависимости go.mod.
func ParseGoMod(path string, data []byte) ([]domain.Library, error) {
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	libs := make([]domain.Library, 0, len(f.Require))
	for _, req := range f.Require {
		libs = append(libs, domain.Library{Name: req.Mod.Path, Version: req.Mod.Version})
	}
	return libs, nil
}
