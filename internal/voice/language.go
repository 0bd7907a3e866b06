package voice

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ent0n29/saarthi/internal/backend"
	"github.com/ent0n29/saarthi/internal/config"
)

// LanguageSetting holds the language selected for the next capture cycle.
type LanguageSetting struct {
	code atomic.Value
}

func NewLanguageSetting(initial string) (*LanguageSetting, error) {
	l := &LanguageSetting{}
	if err := l.Set(initial); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LanguageSetting) Get() string {
	v, _ := l.code.Load().(string)
	return v
}

func (l *LanguageSetting) Set(code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	if !config.IsSupportedLanguage(code) {
		return fmt.Errorf("%w %q (expected one of %s)", backend.ErrUnsupportedLanguage, code, strings.Join(config.SupportedLanguages, ", "))
	}
	l.code.Store(code)
	return nil
}
