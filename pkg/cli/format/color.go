package format

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	SuccessColor   = color.New(color.FgGreen, color.Bold)
	WarningColor   = color.New(color.FgYellow, color.Bold)
	ErrorColor     = color.New(color.FgRed, color.Bold)
	InfoColor      = color.New(color.FgCyan)
	HeadingColor   = color.New(color.FgHiWhite, color.Bold)
	LabelColor     = color.New(color.FgCyan, color.Bold)
	DimColor       = color.New(color.FgHiBlack)
	HighlightColor = color.New(color.FgHiCyan, color.Bold)
)

func init() {
	// fatih/color already honours NO_COLOR and non-TTY stdout.
	if _, noColor := os.LookupEnv("LABCONF_NO_COLOR"); noColor {
		color.NoColor = true
	}
	if _, force := os.LookupEnv("LABCONF_FORCE_COLOR"); force {
		color.NoColor = false
	}
}

// EnableColor enables or disables colored output globally.
func EnableColor(enable bool) {
	color.NoColor = !enable
}

// IsColorEnabled returns whether colored output is enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of stdout, or 80 when unknown.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func Success(format string, a ...interface{}) string {
	return SuccessColor.Sprintf(format, a...)
}

func Warning(format string, a ...interface{}) string {
	return WarningColor.Sprintf(format, a...)
}

func Error(format string, a ...interface{}) string {
	return ErrorColor.Sprintf(format, a...)
}

func Info(format string, a ...interface{}) string {
	return InfoColor.Sprintf(format, a...)
}

func Header(format string, a ...interface{}) string {
	return HeadingColor.Sprintf(format, a...)
}

func Highlight(format string, a ...interface{}) string {
	return HighlightColor.Sprintf(format, a...)
}

func Dim(format string, a ...interface{}) string {
	return DimColor.Sprintf(format, a...)
}

// Label formats a key and value with a label style.
func Label(key, value string) string {
	return fmt.Sprintf("%s %s", LabelColor.Sprint(key+":"), value)
}

// StatusSymbol returns a colorized status symbol.
func StatusSymbol(success bool) string {
	if success {
		return SuccessColor.Sprint("✓")
	}
	return ErrorColor.Sprint("✗")
}

// StatusLabel colors restore and verification outcomes.
func StatusLabel(status string) string {
	status = strings.ToLower(status)
	switch status {
	case "committed", "valid", "success", "ok":
		return SuccessColor.Sprint(status)
	case "rolled_back", "aborted", "skipped":
		return WarningColor.Sprint(status)
	case "rollback_failed", "invalid", "failed", "error":
		return ErrorColor.Sprint(status)
	default:
		return status
	}
}

// Signed renders a percent change with its sign, green when positive.
func Signed(pct float64) string {
	s := fmt.Sprintf("%+.1f%%", pct)
	switch {
	case pct > 0:
		return SuccessColor.Sprint(s)
	case pct < 0:
		return ErrorColor.Sprint(s)
	default:
		return s
	}
}
