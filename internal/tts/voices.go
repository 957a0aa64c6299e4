package tts

// DefaultSpeaker is the speaker id unknown ids fall back to.
const DefaultSpeaker = "1"

// DefaultVoices are the stock XTTS v2 speakers: two female, two male.
var DefaultVoices = VoiceMap{
	"1": "Annmarie Nele", // female, warm
	"2": "Damien Black",  // male, deep
	"3": "Sofia Hellen",  // female, news
	"4": "Craig Gutsy",   // male, energetic
}

// VoiceMap maps speaker ids from <voiceN> tags to backend voice names.
type VoiceMap map[string]string

// NewVoiceMap returns DefaultVoices with any non-empty overrides applied.
func NewVoiceMap(overrides map[string]string) VoiceMap {
	return DefaultVoices.With(overrides)
}

// With returns a copy of m with non-empty overrides applied. Only ids already
// present in m can be overridden; other keys are ignored.
func (m VoiceMap) With(overrides map[string]string) VoiceMap {
	out := make(VoiceMap, len(m))
	for id, v := range m {
		out[id] = v
		if o := overrides[id]; o != "" {
			out[id] = o
		}
	}
	return out
}

// Resolve returns the voice for a speaker id, falling back to speaker 1.
func (m VoiceMap) Resolve(speakerID string) string {
	if v, ok := m[speakerID]; ok {
		return v
	}
	return m[DefaultSpeaker]
}
