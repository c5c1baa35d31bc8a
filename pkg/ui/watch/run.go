// Package watch renders a live terminal feed of incoming updates.
package watch

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mymmrac/telego"
)

// Source yields updates one pull at a time. *stream.Stream[telego.Update]
// satisfies it.
type Source interface {
	Next(ctx context.Context) (telego.Update, bool, error)
}

// Info describes the bot shown in the feed header.
type Info struct {
	Bot       string
	APIServer string
}

// Run shows the feed until the user quits or the source finishes and the user
// dismisses the final screen. The terminal error of the source, if any, is
// returned.
func Run(ctx context.Context, src Source, info Info) error {
	m := newModel(ctx, src, info)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	final, err := program.Run()
	if err != nil {
		return err
	}

	if fm, ok := final.(*model); ok {
		return fm.streamErr
	}
	return nil
}
