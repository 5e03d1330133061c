package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ntBre/newsyacht/pkg/domain"
)

// printArticles writes the plain-text article listing grouped by feed, in
// the stored order (newest first within each feed)
func printArticles(w io.Writer, feeds []domain.Feed, articles []domain.Article) {
	feedsByID := make(map[int64]domain.Feed, len(feeds))
	for _, f := range feeds {
		feedsByID[f.ID] = f
	}

	// group preserving article order, feeds in first-article order
	grouped := make(map[int64][]domain.Article)
	var order []int64
	for _, a := range articles {
		if _, ok := grouped[a.FeedID]; !ok {
			order = append(order, a.FeedID)
		}
		grouped[a.FeedID] = append(grouped[a.FeedID], a)
	}

	for _, feedID := range order {
		f := feedsByID[feedID]
		title := f.Title
		if title == "" {
			title = f.URL
		}
		fmt.Fprintln(w, feedColor(f.Color).Sprint(title))

		for _, a := range grouped[feedID] {
			line := a.Title
			if a.Published != nil {
				line = fmt.Sprintf("%s  (%s)", line, a.Published.Format("2006-01-02"))
			}
			fmt.Fprintf(w, "\t%s\n", line)
		}
	}
}

// feedColor maps a source-list color name to a printer; unknown or empty
// names print uncolored
func feedColor(name string) *color.Color {
	switch strings.ToLower(name) {
	case "red":
		return color.New(color.FgRed)
	case "green":
		return color.New(color.FgGreen)
	case "yellow":
		return color.New(color.FgYellow)
	case "blue":
		return color.New(color.FgBlue)
	case "magenta":
		return color.New(color.FgMagenta)
	case "cyan":
		return color.New(color.FgCyan)
	case "white":
		return color.New(color.FgWhite)
	default:
		return color.New()
	}
}
