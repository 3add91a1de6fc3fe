package whisper

import (
	"fmt"
	"sort"
	"strings"
)

const AutoLanguage = "auto"

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var languages = map[string]string{
	"af": "Afrikaans",
	"ar": "Arabic",
	"bg": "Bulgarian",
	"ca": "Catalan",
	"cs": "Czech",
	"cy": "Welsh",
	"da": "Danish",
	"de": "German",
	"el": "Greek",
	"en": "English",
	"es": "Spanish",
	"et": "Estonian",
	"fa": "Persian",
	"fi": "Finnish",
	"fr": "French",
	"he": "Hebrew",
	"hi": "Hindi",
	"hr": "Croatian",
	"hu": "Hungarian",
	"id": "Indonesian",
	"is": "Icelandic",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"lt": "Lithuanian",
	"lv": "Latvian",
	"ms": "Malay",
	"nl": "Dutch",
	"no": "Norwegian",
	"pl": "Polish",
	"pt": "Portuguese",
	"ro": "Romanian",
	"ru": "Russian",
	"sk": "Slovak",
	"sl": "Slovenian",
	"sr": "Serbian",
	"sv": "Swedish",
	"sw": "Swahili",
	"ta": "Tamil",
	"th": "Thai",
	"tl": "Tagalog",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"ur": "Urdu",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// Languages lists auto-detection first, then every code sorted by name.
func Languages() []Language {
	out := make([]Language, 0, len(languages)+1)
	for code, name := range languages {
		out = append(out, Language{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return append([]Language{{Code: AutoLanguage, Name: "Auto-detect"}}, out...)
}

func NormalizeLanguage(input string) (string, error) {
	code := strings.TrimSpace(strings.ToLower(input))
	if code == "" || code == AutoLanguage {
		return AutoLanguage, nil
	}
	if _, ok := languages[code]; !ok {
		return "", fmt.Errorf("unsupported language %q", input)
	}
	return code, nil
}

func LanguageName(code string) string {
	if code == AutoLanguage {
		return "Auto-detect"
	}
	if name, ok := languages[code]; ok {
		return name
	}
	return code
}
