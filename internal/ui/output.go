package ui

import (
	"fmt"
	"io"
	"os"
)

// Out receives every user-facing message.
var Out io.Writer = os.Stdout

// RunWarningCount tracks warnings printed during a run.
var RunWarningCount int

func printSymbol(color, symbol, msg string) {
	fmt.Fprintf(Out, "%s%s%s %s%s\n", color, symbol, ColorReset, msg, ColorReset)
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) { printSymbol(ColorGreen, SymbolCheck, msg) }

// PrintError prints an error message.
func PrintError(msg string) { printSymbol(ColorRed, SymbolCross, msg) }

// PrintInfo prints an info message.
func PrintInfo(msg string) { printSymbol(ColorBlue, SymbolInfo, msg) }

// PrintWarning prints a warning message and increments the warning counter.
func PrintWarning(msg string) {
	RunWarningCount++
	printSymbol(ColorYellow, SymbolWarning, msg)
}

// PrintDownload prints a download message.
func PrintDownload(msg string) { printSymbol(ColorCyan, SymbolDownload, msg) }

// PrintSubtitle prints a subtitle message.
func PrintSubtitle(msg string) { printSymbol(ColorCyan, SymbolSubtitle, msg) }

// PrintKeyValue prints an aligned key-value pair.
func PrintKeyValue(key, value, valueColor string) {
	maxValueWidth := GetTermWidth() - 24
	if maxValueWidth > 3 && VisibleLength(value) > maxValueWidth {
		value = TruncateWithEllipsis(value, maxValueWidth)
	}
	fmt.Fprintf(Out, "  %s%-20s%s %s%s%s\n", ColorCyan, key+":", ColorReset, valueColor, value, ColorReset)
}

// PrintLines prints diagnostic lines indented under a message.
func PrintLines(lines []string) {
	for _, line := range lines {
		fmt.Fprintf(Out, "    %s\n", line)
	}
}
