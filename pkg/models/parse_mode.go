package models

import "fmt"

// ParseMode is the Telegram formatting mode a message is rendered for.
type ParseMode int

const (
	HTML ParseMode = iota
	MarkdownV2
)

func (m ParseMode) String() string {
	switch m {
	case MarkdownV2:
		return "MarkdownV2"
	default:
		return "HTML"
	}
}

// ParseParseMode accepts the exact names Telegram uses.
func ParseParseMode(s string) (ParseMode, error) {
	switch s {
	case "HTML":
		return HTML, nil
	case "MarkdownV2":
		return MarkdownV2, nil
	default:
		return HTML, fmt.Errorf("unknown parse mode %q", s)
	}
}
