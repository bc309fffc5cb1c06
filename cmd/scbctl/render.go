package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/coreman2200/openscb/internal/board"
	"github.com/coreman2200/openscb/internal/project"
	"github.com/coreman2200/openscb/internal/wire"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	debugStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func renderInfo(b *board.Board) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("OpenSCB board"))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%s %s  %s %d  %s %d\n",
		labelStyle.Render("firmware"), b.Version(),
		labelStyle.Render("outputs"), b.OutputCount(),
		labelStyle.Render("inputs"), b.InputCount())

	t := newTable("#", "name", "on", "value", "goal", "speed", "min", "max")
	for i := 0; i < b.OutputCount(); i++ {
		c := b.OutputCalib(i)
		swatch := lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color(b.OutputColor(i))).
			Render(" " + b.OutputName(i) + " ")
		t.Row(
			strconv.Itoa(i),
			swatch,
			onOff(b.OutputEnabled(i)),
			fmt.Sprintf("%+.3f", b.OutputValue(i)),
			fmt.Sprintf("%+.3f", b.OutputGoal(i)),
			strconv.Itoa(int(b.OutputSpeed(i))),
			strconv.Itoa(int(c.Min)),
			strconv.Itoa(int(c.Max)),
		)
	}
	sb.WriteString(t.Render())
	return sb.String()
}

func renderFlash(slots []wire.SlotHeader) string {
	t := newTable("slot", "type", "size", "description")
	for i, h := range slots {
		t.Row(strconv.Itoa(i), h.Type.String(), strconv.Itoa(int(h.Size)), h.Description())
	}
	return titleStyle.Render("Flash slots") + "\n" + t.Render()
}

func onOff(v bool) string {
	if v {
		return "●"
	}
	return "·"
}

func exportProject(b *board.Board, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := project.Export(b, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func importProject(b *board.Board, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	p, err := project.Import(b, f)
	if err != nil {
		return err
	}
	fmt.Printf("%s %v\n", labelStyle.Render("stored slots"), p.Slots())
	return nil
}
