package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const (
	tabWidth = 8
)

var (
	errorStyle   = color.New(color.FgRed, color.Bold)
	kindStyle    = color.New(color.FgYellow, color.Bold)
	fileStyle    = color.New(color.FgCyan, color.Bold)
	lineStyle    = color.New(color.FgBlue, color.Bold)
	messageStyle = color.New(color.FgRed, color.Bold)
)

// Format renders err as a caret diagnostic when it carries a source
// location, and as a plain colored message otherwise.
func Format(err error) string {
	var (
		syn   *SyntaxError
		lex   *LexError
		eval  *EvalError
		stack *StackError
	)
	switch {
	case errors.As(err, &syn):
		return formatHeader("syntax", fmt.Sprintf("%s:%d:%d", syn.Filename, syn.Pos.Line, syn.Pos.Column)) +
			formatLocated(syn.Pos.Line, syn.Pos.Column, syn.Line, syn.Msg)
	case errors.As(err, &lex):
		return formatHeader("lex", fmt.Sprintf("%s:%d:%d", lex.Filename, lex.Pos.Line, lex.Pos.Column)) +
			formatLocated(lex.Pos.Line, lex.Pos.Column, lex.Line, lex.Msg)
	case errors.As(err, &eval):
		return formatHeader("macro", eval.Filename) + formatSource(eval.Source, eval.Err.Error())
	case errors.As(err, &stack):
		return formatHeader("builder", "<expansion>") + messageStyle.Sprintf("  %s\n\n", stack.Error())
	}
	return errorStyle.Sprint("error: ") + err.Error() + "\n"
}

func formatHeader(kind, location string) string {
	return errorStyle.Sprint("error: ") + kindStyle.Sprint(kind) + "\n" +
		lineStyle.Sprint(" --> ") + fileStyle.Sprint(location) + "\n"
}

func formatLocated(lineNo, column int, sourceLine, msg string) string {
	var result strings.Builder

	lineNumberStr := fmt.Sprintf("%d", lineNo)
	padding := strings.Repeat(" ", len(lineNumberStr)-1)
	result.WriteString(lineStyle.Sprintf("  %s|\n", padding))

	line := expandTabs(strings.TrimRight(sourceLine, "\r\n"))
	result.WriteString(lineStyle.Sprintf("%d | ", lineNo))
	result.WriteString(line + "\n")

	visualColumn := calculateVisualColumn(sourceLine, column)
	result.WriteString(lineStyle.Sprintf("  %s| ", padding))
	result.WriteString(strings.Repeat(" ", visualColumn))
	result.WriteString(messageStyle.Sprintf("^ %s\n\n", msg))

	return result.String()
}

func formatSource(source, msg string) string {
	var result strings.Builder
	lines := strings.Split(strings.TrimRight(source, "\n"), "\n")
	maxLineNumberStr := fmt.Sprintf("%d", len(lines))

	result.WriteString(lineStyle.Sprintf("  %s|\n", strings.Repeat(" ", len(maxLineNumberStr)-1)))
	for i, l := range lines {
		lineNumberStr := fmt.Sprintf("%d", i+1)
		linePadding := strings.Repeat(" ", len(maxLineNumberStr)-len(lineNumberStr))
		result.WriteString(lineStyle.Sprintf("%s%s | ", linePadding, lineNumberStr))
		result.WriteString(expandTabs(l) + "\n")
	}
	result.WriteString(lineStyle.Sprintf("  %s| ", strings.Repeat(" ", len(maxLineNumberStr)-1)))
	result.WriteString(messageStyle.Sprintf("%s\n\n", msg))
	return result.String()
}

func expandTabs(line string) string {
	var expanded strings.Builder
	col := 0
	for _, ch := range line {
		if ch == '\t' {
			spaceCount := tabWidth - (col % tabWidth)
			expanded.WriteString(strings.Repeat(" ", spaceCount))
			col += spaceCount
		} else {
			expanded.WriteRune(ch)
			col++
		}
	}
	return expanded.String()
}

// calculateVisualColumn maps a 0-based byte column to its on-screen column.
func calculateVisualColumn(line string, column int) int {
	visualColumn := 0
	for i, ch := range line {
		if i >= column {
			break
		}
		if ch == '\t' {
			visualColumn += tabWidth - (visualColumn % tabWidth)
		} else {
			visualColumn++
		}
	}
	return visualColumn
}
