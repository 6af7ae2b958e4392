package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

var (
	documentTagRegex        = regexp.MustCompile(`(?i)</?\s*document\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// Language is the natural language every generated field must be written in.
type Language string

const (
	// LanguageEnglish generates English questions.
	LanguageEnglish Language = "en"
	// LanguageRussian generates Russian questions.
	LanguageRussian Language = "ru"
	// LanguageChinese generates Simplified Chinese questions.
	LanguageChinese Language = "zh"
)

var validLanguages = map[Language]bool{
	LanguageEnglish: true,
	LanguageRussian: true,
	LanguageChinese: true,
}

//go:embed templates/*.txt
var templateFS embed.FS

// FS returns the embedded prompt templates.
func FS() fs.FS {
	return templateFS
}

var (
	loadOnce          sync.Once
	loadErr           error
	generateTemplates map[Language]*template.Template
)

// IsValidLanguage checks if a language has a generation template.
func IsValidLanguage(l string) bool {
	return validLanguages[Language(l)]
}

// GenerateData holds template data for generation prompts.
type GenerateData struct {
	Count       int
	SingleShare int
	MultiShare  int
	MinOptions  int
	MaxOptions  int
	Text        string
	Truncated   bool
}

// Load loads prompt templates from fsys.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		generateTemplates = make(map[Language]*template.Template)

		for _, l := range []Language{LanguageEnglish, LanguageRussian, LanguageChinese} {
			file := "templates/generate_" + string(l) + ".txt"

			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}

			tmpl, err := template.New("generate").Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			generateTemplates[l] = tmpl
		}
	})
	return loadErr
}

// BuildGeneratePrompt renders the generation prompt for text in the given
// language. Text is truncated to maxChars characters.
func BuildGeneratePrompt(lang Language, text string, count, maxChars int) (string, error) {
	if generateTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := generateTemplates[lang]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt language: " + string(lang))
	}

	doc, truncated := Truncate(sanitizeDocument(text), maxChars)

	data := GenerateData{
		Count:       count,
		SingleShare: 70,
		MultiShare:  30,
		MinOptions:  4,
		MaxOptions:  5,
		Text:        doc,
		Truncated:   truncated,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// Truncate keeps the first n characters of s. It reports whether anything
// was cut. n <= 0 disables truncation.
func Truncate(s string, n int) (string, bool) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:n]), true
}

func sanitizeDocument(text string) string {
	text = documentTagRegex.ReplaceAllString(text, "")
	text = systemInstructionsRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
