package telephony

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.

const (
	DefaultVoice    = "Polly.Joanna"
	DefaultLanguage = "en-US"

	pauseAfterSpeechSeconds = 2
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr"`
	Language string   `xml:"language,attr"`

	// Body is written verbatim; it must already be escaped with EscapeMarkup.
	Body string `xml:",innerxml"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

// markupEscaper replaces all five reserved characters in one pass, so an
// ampersand introduced by a replacement is never escaped again.
var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeMarkup makes free text safe to embed as voice-markup character data.
func EscapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}

// SpeechDocument is the input of RenderSpeech. Empty Voice/Language fall back
// to DefaultVoice/DefaultLanguage.
type SpeechDocument struct {
	Text     string
	Voice    string
	Language string
}

// RenderSpeech renders a document that speaks Text once and then pauses.
// It performs no validation; callers make sure Text is non-empty.
func RenderSpeech(doc SpeechDocument) (string, error) {
	voice := strings.TrimSpace(doc.Voice)
	if voice == "" {
		voice = DefaultVoice
	}
	language := strings.TrimSpace(doc.Language)
	if language == "" {
		language = DefaultLanguage
	}

	r := twimlResponse{Verbs: []any{
		twimlSay{Voice: voice, Language: language, Body: EscapeMarkup(doc.Text)},
		twimlPause{Length: pauseAfterSpeechSeconds},
	}}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
