package lang

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"lunabot/pkg/logger"
)

//go:embed en.lang
var builtin embed.FS

// Store holds key -> template translations loaded from .lang files.
// Templates use positional placeholders: {0}, {1}, ...
type Store struct {
	mu           sync.RWMutex
	translations map[string]string
	language     string
	dir          string
}

// NewStore loads langCode from dir, falling back to the embedded English
// strings when the file is missing or unreadable.
func NewStore(dir, langCode string) *Store {
	s := &Store{
		translations: make(map[string]string),
		language:     "en",
		dir:          dir,
	}

	if langCode == "" {
		langCode = "en"
	}
	if !s.load(langCode) && langCode != "en" {
		logger.WarnCF("lang", "Language not found, falling back to en", map[string]interface{}{
			"language": langCode,
		})
		s.load("en")
	}
	return s
}

func (s *Store) load(langCode string) bool {
	content, err := s.readLangFile(langCode)
	if err != nil {
		logger.ErrorCF("lang", "Failed to load language file", map[string]interface{}{
			"language":        langCode,
			logger.FieldError: err.Error(),
		})
		return false
	}

	s.mu.Lock()
	s.translations = parseLangFile(content)
	s.language = langCode
	s.mu.Unlock()
	return true
}

func (s *Store) readLangFile(langCode string) (string, error) {
	if s.dir != "" {
		path := filepath.Join(s.dir, langCode+".lang")
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}
	data, err := builtin.ReadFile(langCode + ".lang")
	if err != nil {
		return "", fmt.Errorf("language file not found: %s.lang", langCode)
	}
	return string(data), nil
}

// parseLangFile parses key=value lines. Blank lines and lines starting
// with # are skipped; everything after the first '=' is the template.
func parseLangFile(content string) map[string]string {
	translations := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		eq := strings.Index(trimmed, "=")
		if eq == -1 {
			continue
		}
		key := strings.TrimSpace(trimmed[:eq])
		value := strings.TrimSpace(trimmed[eq+1:])
		if key != "" {
			translations[key] = value
		}
	}
	return translations
}

// Get returns the translation for key with {0}, {1}, ... replaced by params.
// A missing key returns the key itself so callers always have something to send.
func (s *Store) Get(key string, params ...interface{}) string {
	s.mu.RLock()
	text, ok := s.translations[key]
	s.mu.RUnlock()

	if !ok {
		logger.WarnCF("lang", "Translation key not found", map[string]interface{}{
			"key": key,
		})
		return key
	}

	for i, param := range params {
		placeholder := fmt.Sprintf("{%d}", i)
		text = strings.ReplaceAll(text, placeholder, fmt.Sprint(param))
	}
	return text
}

// ChangeLanguage switches to langCode, keeping the current table when the
// new file cannot be loaded.
func (s *Store) ChangeLanguage(langCode string) bool {
	return s.load(langCode)
}

func (s *Store) CurrentLanguage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}
