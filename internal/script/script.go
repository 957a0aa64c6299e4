// Package script parses dialogue scripts into an ordered list of speaker lines.
//
// A script looks like this:
//
//	language: de
//	filename: barcelona_vs_bilbao.wav
//
//	<voice1>Willkommen zu unserem Podcast!
//	<voice2>Danke für die Einladung.</voice2>
//
// Header lines are optional. Each <voiceN> tag starts a segment that runs
// until a closing </voiceN>, the next opening tag, or the end of the script.
package script

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxScriptLength is the largest accepted script, in characters.
	MaxScriptLength = 100000

	// DefaultLanguage is used when the script has no language header.
	DefaultLanguage = "en"

	// DefaultOutputFile is used when the script has no filename header.
	DefaultOutputFile = "podcast.wav"

	// Extension is forced onto every output file name.
	Extension = ".wav"
)

var (
	// ErrScriptTooLong is returned for scripts over MaxScriptLength characters.
	ErrScriptTooLong = errors.New("script too long")

	// ErrNoDialogueFound is returned when no non-empty tagged segment exists.
	ErrNoDialogueFound = errors.New("no dialogue found")
)

var (
	languageHeader = regexp.MustCompile(`(?im)^[ \t]*language:[ \t]*([\p{L}\p{N}_]+)`)
	filenameHeader = regexp.MustCompile(`(?im)^[ \t]*filename:[ \t]*(.+?)[ \t]*$`)
)

// Line is one speaker turn.
type Line struct {
	// Speaker is the number from the <voiceN> tag, verbatim ("1", "2", "17").
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Speaker describes how one speaker id is voiced for a run.
type Speaker struct {
	ID       string
	Language string
}

// Document is the parsed form of a script.
type Document struct {
	Language   string `json:"language"`
	OutputFile string `json:"output_file"`
	Dialogue   []Line `json:"dialogue"`

	// Discarded holds untagged text found before the first voice tag.
	// It is not part of the dialogue.
	Discarded string `json:"discarded,omitempty"`
}

// Speakers returns the distinct speakers used in the dialogue. All speakers
// share the document language.
func (d *Document) Speakers() map[string]Speaker {
	speakers := make(map[string]Speaker)
	for _, l := range d.Dialogue {
		if _, ok := speakers[l.Speaker]; ok {
			continue
		}
		speakers[l.Speaker] = Speaker{ID: l.Speaker, Language: d.Language}
	}
	return speakers
}

// Parser turns script text into a Document.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser that reports dropped text to logger.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse parses text with a parser logging to the default logger.
func Parse(text string) (*Document, error) {
	return NewParser(nil).Parse(text)
}

// Parse parses a script.
func (p *Parser) Parse(text string) (*Document, error) {
	if n := utf8.RuneCountInString(text); n > MaxScriptLength {
		return nil, fmt.Errorf("%w (%d chars, max %d)", ErrScriptTooLong, n, MaxScriptLength)
	}

	tags := scanTags(text)

	// Headers only count before the first voice tag.
	preamble := text
	if first := firstOpener(tags); first != nil {
		preamble = text[:first.start]
	}

	doc := &Document{
		Language:   DefaultLanguage,
		OutputFile: DefaultOutputFile,
	}
	if m := languageHeader.FindStringSubmatch(preamble); m != nil {
		doc.Language = m[1]
	}
	if m := filenameHeader.FindStringSubmatch(preamble); m != nil {
		doc.OutputFile = sanitizeFileName(m[1])
	}

	if firstOpener(tags) != nil {
		if stray := stripHeaders(preamble); stray != "" {
			doc.Discarded = stray
			p.logger.Warn("text outside voice tags will be ignored", "text", truncate(stray, 50))
		}
	}

	for i, t := range tags {
		if t.closing {
			continue
		}
		end := len(text)
		if i+1 < len(tags) {
			end = tags[i+1].start
		}
		body := strings.TrimSpace(stripClosers(text[t.end:end]))
		if body == "" {
			continue
		}
		doc.Dialogue = append(doc.Dialogue, Line{Speaker: t.speaker, Text: body})
	}

	if len(doc.Dialogue) == 0 {
		return nil, fmt.Errorf("%w: use <voice1>, <voice2>, etc. tags to mark dialogue", ErrNoDialogueFound)
	}
	return doc, nil
}

// sanitizeFileName keeps only the base name and forces the .wav extension.
func sanitizeFileName(raw string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return DefaultOutputFile
	}
	if !strings.HasSuffix(strings.ToLower(name), Extension) {
		name += Extension
	}
	return name
}

// stripHeaders removes recognized header lines and returns what is left.
func stripHeaders(s string) string {
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		l := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(l, "language:") || strings.HasPrefix(l, "filename:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
