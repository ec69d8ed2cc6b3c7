package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm writes a yes/no question to out and reads the answer from in.
// Anything other than "y" or "yes" is a no.
func Confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", StyleWarning.Render(prompt))
	return readYes(in)
}

// ConfirmDanger is like Confirm but styled with the error color (for destructive actions).
func ConfirmDanger(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", StyleError.Render("⚠ "+prompt))
	return readYes(in)
}

func readYes(in io.Reader) bool {
	line, _ := bufio.NewReader(in).ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}
