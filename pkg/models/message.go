package models

import (
	"html"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is Telegram's hard ceiling for a message, in characters.
const MaxMessageLength = 4096

const footerText = "Read patch notes"

// markdownV2Reserved must each be backslash-escaped in MarkdownV2 text.
const markdownV2Reserved = "\\_*[]()~`>&#+-=|{}.!"

// Escape prepares literal text for the given parse mode.
func Escape(mode ParseMode, s string) string {
	if mode == MarkdownV2 {
		return escapeMarkdownV2(s, markdownV2Reserved)
	}
	return html.EscapeString(s)
}

func escapeMarkdownV2(s, reserved string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RenderMessage formats the entry as a channel post linking to link. The body
// is included only when it fits under MaxMessageLength; it is never truncated.
func (e ChangelogEntry) RenderMessage(mode ParseMode, link string) string {
	var header, footer string
	switch mode {
	case MarkdownV2:
		header = "*" + Escape(mode, e.Title) + "*"
		// inside (...) only ')' and '\' need escaping
		footer = "[" + Escape(mode, footerText) + "](" + escapeMarkdownV2(link, `)\`) + ")"
	default:
		header = "<b>" + Escape(mode, e.Title) + "</b>"
		footer = `<a href="` + Escape(mode, link) + `">` + footerText + "</a>"
	}

	if e.FitsInMessage() {
		return header + "\n\n" + Escape(mode, e.TextContent) + "\n\n" + footer
	}
	return header + "\n\n" + footer
}

// FitsInMessage reports whether the plain-text body is short enough to post.
func (e ChangelogEntry) FitsInMessage() bool {
	return utf8.RuneCountInString(e.TextContent) < MaxMessageLength
}
