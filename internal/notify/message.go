package notify

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jalaljaleh/portfolio-edge/internal/fingerprint"
)

const (
	messageTitle        = "Visitor Notification"
	maxMessageUALen     = 300
	maxMessageURLLen    = 512
	maxMessageFieldLen  = 256
	truncatedMarker     = "…"
	missingHeaderValue  = "-"
	isoMillisTimeLayout = "2006-01-02T15:04:05.000Z07:00"

	// MaxMessageRunes is Telegram's sendMessage text limit.
	MaxMessageRunes = 4096
)

// Field is one labeled line of a Message. Value is already escaped.
type Field struct {
	Label string
	Value string
	Code  bool
}

// Message is a closed, ordered list of fields rendered as MarkdownV2.
type Message struct {
	Title  string
	Fields []Field
}

// Add escapes value and appends it under label.
func (m *Message) Add(label, value string) {
	m.Fields = append(m.Fields, Field{Label: label, Value: Escape(value)})
}

// AddCode is like Add but renders the value as inline code.
func (m *Message) AddCode(label, value string) {
	m.Fields = append(m.Fields, Field{Label: label, Value: Escape(value), Code: true})
}

// Render joins the title and fields, one per line. Whole lines are dropped
// from the end, marked by a trailing ellipsis, so the text never exceeds
// MaxMessageRunes and no escape sequence is cut in half.
func (m Message) Render() string {
	lines := make([]string, 0, len(m.Fields)+1)
	if m.Title != "" {
		lines = append(lines, "*"+Escape(m.Title)+"*")
	}
	for _, f := range m.Fields {
		value := f.Value
		if f.Code {
			value = "`" + value + "`"
		}
		lines = append(lines, "*"+Escape(f.Label)+":* "+value)
	}

	text := strings.Join(lines, "\n")
	if utf8.RuneCountInString(text) <= MaxMessageRunes {
		return text
	}
	budget := MaxMessageRunes - utf8.RuneCountInString(truncatedMarker) - 1
	used := 0
	for i, line := range lines {
		n := utf8.RuneCountInString(line)
		if i > 0 {
			n++
		}
		if used+n > budget {
			return strings.Join(append(lines[:i:i], truncatedMarker), "\n")
		}
		used += n
	}
	return text
}

// Visit is the request metadata a notification is built from.
type Visit struct {
	Key            string
	Time           time.Time
	IP             string
	URL            string
	UserAgent      string
	AcceptLanguage string
	Referer        string
	Fingerprint    fingerprint.Fingerprint
}

// BuildMessage lays out the alert in its fixed order: Time, IP, URL, the
// client fingerprint signals, User-Agent, Language, Referer.
func BuildMessage(v Visit) Message {
	m := Message{Title: messageTitle}
	m.Add("Time", v.Time.UTC().Format(isoMillisTimeLayout))
	m.AddCode("IP", orDash(v.IP))
	m.Add("URL", truncate(orDash(v.URL), maxMessageURLLen))
	for _, f := range v.Fingerprint.Fields() {
		m.Add(f.Label, truncate(f.Value, maxMessageFieldLen))
	}
	m.Add("User-Agent", truncate(orDash(v.UserAgent), maxMessageUALen))
	m.Add("Language", truncate(orDash(v.AcceptLanguage), maxMessageFieldLen))
	m.Add("Referer", truncate(orDash(v.Referer), maxMessageURLLen))
	return m
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return missingHeaderValue
	}
	return s
}
