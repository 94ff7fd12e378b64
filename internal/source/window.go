package source

import (
	"fmt"
	"strings"
)

// Window selects which popularity listing to read.
type Window string

const (
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowAll   Window = "all"
)

// ParseWindow accepts a window name; empty means today.
func ParseWindow(value string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(value))); w {
	case "":
		return WindowToday, nil
	case WindowToday, WindowWeek, WindowMonth, WindowAll:
		return w, nil
	default:
		return "", fmt.Errorf("unknown listing window %q (want today, week, month or all)", value)
	}
}

// Slug is the path segment substituted for {window} in the listing path.
func (w Window) Slug() string {
	switch w {
	case WindowWeek:
		return "popular-week"
	case WindowMonth:
		return "popular-month"
	case WindowAll:
		return "popular"
	default:
		return "popular-today"
	}
}
