// Package report renders human-readable route tables for startup diagnostics.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Row is one line of the route table
type Row struct {
	Method      string
	Path        string
	Controller  string
	Handler     string
	Middlewares int
	Security    []string
	Stream      string
}

var methodColors = map[string]*color.Color{
	"GET":    color.New(color.FgGreen, color.Bold),
	"POST":   color.New(color.FgYellow, color.Bold),
	"PUT":    color.New(color.FgBlue, color.Bold),
	"PATCH":  color.New(color.FgCyan, color.Bold),
	"DELETE": color.New(color.FgRed, color.Bold),
	"ANY":    color.New(color.FgMagenta, color.Bold),
}

// PrintRouteTable writes the route table to w, one row per route, grouped in
// the order given
func PrintRouteTable(w io.Writer, rows []Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no routes registered")
		return
	}

	pathWidth := 0
	for _, row := range rows {
		if len(row.Path) > pathWidth {
			pathWidth = len(row.Path)
		}
	}

	header := color.New(color.Bold)
	header.Fprintf(w, "%-7s %-*s %s\n", "METHOD", pathWidth, "PATH", "HANDLER")

	for _, row := range rows {
		c, ok := methodColors[row.Method]
		if !ok {
			c = color.New(color.Bold)
		}
		c.Fprintf(w, "%-7s", row.Method)

		fmt.Fprintf(w, " %-*s %s.%s", pathWidth, row.Path, row.Controller, row.Handler)

		var notes []string
		if row.Middlewares > 0 {
			notes = append(notes, fmt.Sprintf("%d middleware", row.Middlewares))
		}
		if len(row.Security) > 0 {
			notes = append(notes, "security: "+strings.Join(row.Security, ","))
		}
		if row.Stream != "" && row.Stream != "none" {
			notes = append(notes, row.Stream+" stream")
		}
		if len(notes) > 0 {
			color.New(color.Faint).Fprintf(w, "  (%s)", strings.Join(notes, ", "))
		}
		fmt.Fprintln(w)
	}
}
