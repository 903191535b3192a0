package color

import (
	"github.com/fatih/color"
)

var (
	promptColor   = color.New(color.FgCyan, color.Bold)
	infoColor     = color.New(color.FgGreen)
	warningColor  = color.New(color.FgYellow, color.Bold)
	errorColor    = color.New(color.FgRed, color.Bold)
	senderColor   = color.New(color.FgHiYellow, color.Bold)
	navigateColor = color.New(color.FgMagenta, color.Bold)
)

func ColorPrompt(s string) string {
	return promptColor.Sprint(s)
}

func ColorInfo(s string) string {
	return infoColor.Sprint(s)
}

func ColorWarning(s string) string {
	return warningColor.Sprint(s)
}

func ColorError(s string) string {
	return errorColor.Sprint(s)
}

func ColorSender(s string) string {
	return senderColor.Sprint(s)
}

func ColorNavigate(s string) string {
	return navigateColor.Sprint(s)
}

// Disable turns colouring off, e.g. when output is not a terminal.
func Disable() {
	color.NoColor = true
}
