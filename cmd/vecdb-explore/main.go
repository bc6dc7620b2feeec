// Command vecdb-explore is an interactive terminal browser over a
// vecdb database directory: it lists collections and lets you pick an
// existing stored id as a query vector, since typing a raw float
// vector at a terminal prompt is impractical.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/HessamLa/vecdb-hnsw/internal/vecdb"
)

func main() {
	dbPath := "./vecdb_data"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}

	r, err := vecdb.Open(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open database:", err)
		os.Exit(1)
	}

	m := newModel(r)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
