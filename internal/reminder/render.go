package reminder

import (
	"fmt"
	"strings"
)

const DefaultTitle = "⏰ Schedule reminder"

// Notification is what a Sink is asked to show.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// Renderer turns a due reminder into its notification text.
type Renderer interface {
	Render(ft FireTime) Notification
}

// TextRenderer is the default Renderer.
type TextRenderer struct {
	// Title overrides DefaultTitle when set.
	Title string
}

func (r TextRenderer) Render(ft FireTime) Notification {
	title := r.Title
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	when := "starts now"
	switch n := ft.MinutesBefore; {
	case n == 1:
		when = "starts in 1 minute"
	case n > 1:
		when = fmt.Sprintf("starts in %d minutes", n)
	}

	body := fmt.Sprintf("Schedule \"%s\" %s (%s)", ft.Occurrence.Title, when, ft.Occurrence.TimeStart)
	if loc := ft.Occurrence.Location; loc != "" {
		body += " at " + loc
	}

	return Notification{Title: title, Body: body, Tag: DedupeTag(ft.Key)}
}
