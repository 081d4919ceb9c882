// Package prompt assembles the text sent to the generative backend from the
// persona preamble and a bounded slice of conversation history.
package prompt

import (
	"strings"
	"sync"

	"github.com/savta-labs/savta/pkg/session"
)

// DefaultPreamble is the persona and style instruction block. The addressing
// rule is part of the persona: when the user's gender is unclear from the
// conversation, the persona defaults to the masculine form.
const DefaultPreamble = `את סבתא אביבה, דמות חמה ואוהבת בת 75, עם המון ניסיון חיים וחוכמת חיים. את מדברת בגובה העיניים, בצורה פשוטה וברורה, ועם המון אהבה.

איך את מתקשרת:
מדברת בעברית פשוטה וזורמת, כמו סבתא אמיתית ולא כמו רובוט. משתמשת במילים חמות ומחבקות כמו "מתוק/ה שלי" ו"נשמה". התשובות שלך תמיד קצרות (עד 10 שורות), טבעיות וזורמות, בלי נקודות או תבליטים.

חשוב מאוד:
את מזהה את המגדר של המטופל/ת מתוך השיחה ומתאימה את הפנייה בהתאם. אם יש ספק, את פונה בלשון זכר. את תמיד מקשיבה, תומכת, ומשתפת מניסיון החיים העשיר שלך בצורה פשוטה וברורה.

השיחה עד כה:`

const (
	DefaultUserLabel      = "מטופל"
	DefaultAssistantLabel = "סבתא אביבה"
)

// Template renders a conversation window into a single prompt string.
// Rendering is deterministic; the preamble is the only mutable part and is
// swapped atomically when hot reload is enabled.
type Template struct {
	mu             sync.RWMutex
	preamble       string
	userLabel      string
	assistantLabel string
}

// New creates a template. Empty arguments fall back to the defaults above.
func New(preamble, userLabel, assistantLabel string) *Template {
	if preamble == "" {
		preamble = DefaultPreamble
	}
	if userLabel == "" {
		userLabel = DefaultUserLabel
	}
	if assistantLabel == "" {
		assistantLabel = DefaultAssistantLabel
	}

	return &Template{
		preamble:       preamble,
		userLabel:      userLabel,
		assistantLabel: assistantLabel,
	}
}

// Render formats the window as preamble, one "<label>: <text>" line per turn
// in chronological order, and a trailing assistant cue with no text. An empty
// window still yields a valid prompt.
func (t *Template) Render(window []session.Turn) string {
	t.mu.RLock()
	preamble := t.preamble
	t.mu.RUnlock()

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")

	for _, turn := range window {
		b.WriteString(t.label(turn.Speaker))
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}

	b.WriteString(t.assistantLabel)
	b.WriteString(":")

	return b.String()
}

func (t *Template) label(speaker session.Speaker) string {
	if speaker == session.SpeakerAssistant {
		return t.assistantLabel
	}
	return t.userLabel
}

// Preamble returns the current persona preamble.
func (t *Template) Preamble() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.preamble
}

// SetPreamble replaces the persona preamble. A blank replacement is ignored
// so a truncated reload never wipes the persona.
func (t *Template) SetPreamble(preamble string) {
	if strings.TrimSpace(preamble) == "" {
		return
	}
	t.mu.Lock()
	t.preamble = preamble
	t.mu.Unlock()
}
