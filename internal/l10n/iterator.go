package l10n

import (
	"context"
	"iter"
	"slices"
	"strings"
)

// LanguageIterator walks the languages worth trying for a user, most
// specific first: the forced language, the user's language and its base,
// the default language and its base, and finally "en".
type LanguageIterator struct {
	langs []string
	i     int
}

// LanguageIterator builds the iterator for uid, or for the request's user
// when uid is empty.
func (f *Factory) LanguageIterator(ctx context.Context, req *Request, uid string) (*LanguageIterator, error) {
	if uid == "" && req != nil {
		uid = req.UserID
	}
	if uid == "" {
		return nil, ErrNoUserSession
	}

	candidates := make([]string, 0, 6)
	if forced, ok := f.config.ForceLanguage(); ok {
		candidates = append(candidates, forced)
	}
	if userLang := f.userLanguage(ctx, uid); userLang != "" {
		candidates = append(candidates, userLang, baseLanguage(userLang))
	}
	if def, ok := f.config.DefaultLanguage(); ok {
		candidates = append(candidates, def, baseLanguage(def))
	}
	candidates = append(candidates, fallbackLanguage)

	langs := make([]string, 0, len(candidates))
	for _, lang := range candidates {
		if lang != "" && !slices.Contains(langs, lang) {
			langs = append(langs, lang)
		}
	}
	return &LanguageIterator{langs: langs}, nil
}

// Next advances the iterator; it reports false once every language was seen.
func (it *LanguageIterator) Next() bool {
	if it.i >= len(it.langs) {
		return false
	}
	it.i++
	return true
}

// Current returns the language Next moved to.
func (it *LanguageIterator) Current() string {
	if it.i == 0 || it.i > len(it.langs) {
		return ""
	}
	return it.langs[it.i-1]
}

// All yields the remaining languages.
func (it *LanguageIterator) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for it.Next() {
			if !yield(it.Current()) {
				return
			}
		}
	}
}

func baseLanguage(lang string) string {
	base, _, _ := strings.Cut(lang, "_")
	return base
}
