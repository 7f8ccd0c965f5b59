package l10n

import (
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// commonLanguages are listed first in language pickers, in this order.
var commonLanguages = []string{
	"en", "es", "fr", "de", "de_DE", "ja", "ar", "ru", "nl", "it",
	"pt_BR", "pt_PT", "da", "fi_FI", "nb_NO", "sv", "tr", "zh_CN", "ko",
}

var rtlLanguages = []string{"ar", "fa", "he", "ps", "ug", "ur_PK"}

const languageNameKey = "__language_name__"

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Languages struct {
	CommonLanguages []Language `json:"commonLanguages"`
	OtherLanguages  []Language `json:"otherLanguages"`
}

// GetLanguages lists the core languages for a language picker. A forced
// language is the only choice. reduce_to_languages narrows the list unless
// nothing would remain.
func (f *Factory) GetLanguages() Languages {
	if forced, ok := f.config.ForceLanguage(); ok {
		return Languages{
			CommonLanguages: []Language{{Code: forced, Name: f.languageName(forced)}},
			OtherLanguages:  []Language{},
		}
	}

	codes := f.FindAvailableLanguages("")
	if reduce := f.config.ReduceToLanguages(); len(reduce) > 0 {
		reduced := make([]string, 0, len(codes))
		for _, code := range codes {
			if slices.Contains(reduce, code) {
				reduced = append(reduced, code)
			}
		}
		if len(reduced) > 0 {
			codes = reduced
		}
	}

	ret := Languages{
		CommonLanguages: make([]Language, 0),
		OtherLanguages:  make([]Language, 0),
	}
	for _, code := range codes {
		lang := Language{Code: code, Name: f.languageName(code)}
		if slices.Contains(commonLanguages, code) {
			ret.CommonLanguages = append(ret.CommonLanguages, lang)
		} else {
			ret.OtherLanguages = append(ret.OtherLanguages, lang)
		}
	}

	sort.SliceStable(ret.CommonLanguages, func(i, j int) bool {
		return slices.Index(commonLanguages, ret.CommonLanguages[i].Code) <
			slices.Index(commonLanguages, ret.CommonLanguages[j].Code)
	})
	sort.SliceStable(ret.OtherLanguages, func(i, j int) bool {
		a, b := ret.OtherLanguages[i], ret.OtherLanguages[j]
		if a.Name == b.Name {
			return a.Code < b.Code
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return ret
}

// languageName prefers the name from the lib catalog, then the CLDR name of
// the language in itself.
func (f *Factory) languageName(code string) string {
	if name := f.Get("lib", code).T(languageNameKey); name != languageNameKey && !strings.HasPrefix(name, "_") {
		return name
	}
	if code == fallbackLanguage {
		return "English (US)"
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return code
}

// LanguageDirection returns "rtl" for right-to-left languages, "ltr" otherwise.
func (f *Factory) LanguageDirection(lang string) string {
	if slices.Contains(rtlLanguages, lang) {
		return "rtl"
	}
	return "ltr"
}
