// Package messaging models WhatsApp traffic: inbound webhook messages and the
// three outbound shapes the bot sends (text, quick-reply buttons, lists).
package messaging

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxButtons          = 3
	MaxButtonTitle      = 20
	MaxListRows         = 10
	MaxRowTitle         = 24
	MaxRowDescription   = 72
	MaxListButtonLabel  = 20
	MaxSectionTitle     = 24
	MaxTextBody         = 4096
	MaxInteractiveBody  = 1024
	interactiveButton   = "button"
	interactiveList     = "list"
	messageTypeText     = "text"
	messageTypeInteract = "interactive"
)

type Kind string

const (
	KindText        Kind = "text"
	KindInteractive Kind = "interactive"
)

// Inbound is one message received from a patient. Interactive replies carry
// the id and title of the button or list row that was tapped.
type Inbound struct {
	MessageID  string
	From       string
	Kind       Kind
	Text       string
	ReplyID    string
	ReplyTitle string
}

// Body is the text handlers read: the typed text, or the tapped title.
func (m Inbound) Body() string {
	if m.Kind == KindInteractive {
		return m.ReplyTitle
	}
	return m.Text
}

func (m Inbound) IsInteractive() bool { return m.Kind == KindInteractive }

type Button struct {
	ID    string
	Title string
}

type ListRow struct {
	ID          string
	Title       string
	Description string
}

type ListSection struct {
	Title string
	Rows  []ListRow
}

type List struct {
	Body        string
	ButtonLabel string
	Sections    []ListSection
}

// Sender delivers outbound messages to a phone number.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []Button) error
	SendList(ctx context.Context, to string, list List) error
}

// Buttons builds reply buttons with ids btn_0, btn_1, ... from titles.
func Buttons(titles ...string) []Button {
	out := make([]Button, 0, len(titles))
	for i, t := range titles {
		out = append(out, Button{ID: fmt.Sprintf("btn_%d", i), Title: t})
	}
	return out
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// NormalizeButtons enforces the channel limits: at most three buttons with
// titles of at most twenty runes.
func NormalizeButtons(buttons []Button) []Button {
	if len(buttons) > MaxButtons {
		buttons = buttons[:MaxButtons]
	}
	out := make([]Button, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, Button{ID: b.ID, Title: Truncate(b.Title, MaxButtonTitle)})
	}
	return out
}

// NormalizeList enforces the list limits, dropping rows past the tenth and
// empty sections.
func NormalizeList(l List) List {
	out := List{
		Body:        Truncate(l.Body, MaxInteractiveBody),
		ButtonLabel: Truncate(l.ButtonLabel, MaxListButtonLabel),
	}
	if out.ButtonLabel == "" {
		out.ButtonLabel = "Select"
	}

	remaining := MaxListRows
	for _, sec := range l.Sections {
		if remaining == 0 {
			break
		}
		rows := sec.Rows
		if len(rows) > remaining {
			rows = rows[:remaining]
		}
		if len(rows) == 0 {
			continue
		}
		ns := ListSection{Title: Truncate(sec.Title, MaxSectionTitle)}
		for _, r := range rows {
			ns.Rows = append(ns.Rows, ListRow{
				ID:          r.ID,
				Title:       Truncate(r.Title, MaxRowTitle),
				Description: Truncate(r.Description, MaxRowDescription),
			})
		}
		remaining -= len(ns.Rows)
		out.Sections = append(out.Sections, ns)
	}
	return out
}
