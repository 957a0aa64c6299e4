package script

import "strings"

// tag is a <voiceN> or </voiceN> marker located in the source text.
type tag struct {
	start, end int // byte offsets; text[start:end] is the whole marker
	speaker    string
	closing    bool
}

// scanTags locates every voice marker in a single left-to-right pass.
// Matching is case-sensitive.
func scanTags(text string) []tag {
	var tags []tag
	for i := 0; i < len(text); {
		j := strings.IndexByte(text[i:], '<')
		if j < 0 {
			break
		}
		i += j
		if t, ok := matchTag(text, i); ok {
			tags = append(tags, t)
			i = t.end
			continue
		}
		i++
	}
	return tags
}

// matchTag reports whether a voice marker starts at text[at].
func matchTag(text string, at int) (tag, bool) {
	const name = "voice"
	p := at + 1
	closing := false
	if p < len(text) && text[p] == '/' {
		closing = true
		p++
	}
	if !strings.HasPrefix(text[p:], name) {
		return tag{}, false
	}
	p += len(name)
	digits := p
	for p < len(text) && text[p] >= '0' && text[p] <= '9' {
		p++
	}
	if p == digits || p >= len(text) || text[p] != '>' {
		return tag{}, false
	}
	return tag{start: at, end: p + 1, speaker: text[digits:p], closing: closing}, true
}

func firstOpener(tags []tag) *tag {
	for i := range tags {
		if !tags[i].closing {
			return &tags[i]
		}
	}
	return nil
}

// stripClosers removes any </voiceN> markers left in s.
func stripClosers(s string) string {
	if !strings.Contains(s, "</voice") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '<' {
			if t, ok := matchTag(s, i); ok && t.closing {
				i = t.end
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
