package ui

import (
	"fmt"
	"io"

	"github.com/ads/ads-cli/internal/api"
	"github.com/fatih/color"
)

// PrintUsage renders the token accounting of a completed exchange.
func PrintUsage(w io.Writer, u api.Usage) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "\nToken Usage:")
	fmt.Fprintf(w, "  Prompt:     %d\n", u.PromptTokens)
	fmt.Fprintf(w, "  Completion: %d\n", u.CompletionTokens)
	fmt.Fprintf(w, "  Total:      %d\n", u.TotalTokens)
}
