package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"

	"github.com/macropower/prodmatch/pkg/config"
	"github.com/macropower/prodmatch/pkg/dataset"
	"github.com/macropower/prodmatch/pkg/oracle"
)

// hint is printed below an error matching err.
type hint struct {
	err    error
	prefix string
	flag   string
	suffix string
}

var hints = []hint{
	{
		err:    dataset.ErrMissingInput,
		prefix: "Set",
		flag:   "--products",
		suffix: "and --guidelines, or create the missing files.",
	},
	{
		err:    dataset.ErrMalformedInput,
		prefix: "Check that",
		flag:   "--products",
		suffix: "and --guidelines point at JSON arrays of objects.",
	},
	{
		err:    oracle.ErrMissingCredential,
		prefix: "Export the key, or try",
		flag:   "--oracle-command",
		suffix: "to use a local model.",
	},
	{
		err:    oracle.ErrUnknownProvider,
		prefix: "Try",
		flag:   "--oracle-command",
		suffix: "to use a local model.",
	},
	{
		err:    config.ErrInvalid,
		prefix: "Fix the file, or try",
		flag:   "--config",
		suffix: "to use another one.",
	},
}

func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	mustN(fmt.Fprintln(w, styles.ErrorHeader.String()))
	mustN(fmt.Fprintln(w, lipgloss.NewStyle().MarginLeft(2).Render(err.Error())))
	mustN(fmt.Fprintln(w))

	h, ok := hintFor(err)
	if !ok {
		return
	}

	mustN(fmt.Fprintln(w, lipgloss.JoinHorizontal(
		lipgloss.Left,
		styles.ErrorText.UnsetWidth().PaddingRight(1).Render(h.prefix),
		styles.Program.Flag.Render(h.flag),
		styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render(h.suffix),
	)))
	mustN(fmt.Fprintln(w))
}

func hintFor(err error) (hint, bool) {
	if isUsageError(err) {
		return hint{prefix: "Try", flag: "--help", suffix: "for usage."}, true
	}

	for _, h := range hints {
		if errors.Is(err, h.err) {
			return h, true
		}
	}

	return hint{}, false
}

// XXX: this is a hack to detect usage errors.
// See: https://github.com/spf13/cobra/pull/2266
func isUsageError(err error) bool {
	s := err.Error()
	for _, prefix := range []string{
		"flag needs an argument:",
		"unknown flag:",
		"unknown shorthand flag:",
		"unknown command",
		"invalid argument",
	} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustN(_ int, err error) {
	must(err)
}
