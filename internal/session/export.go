package session

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/llm"
)

// Export formats.
const (
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ParseFormat normalizes a format name. Empty means Markdown.
func ParseFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unsupported export format %q (use md or html)", format))
}

// ContentType returns the HTTP content type for a parsed format.
func ContentType(format string) string {
	if format == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Export renders a transcript of s as Markdown or as HTML.
func Export(s *State, format string) ([]byte, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	md := Markdown(s)
	if f == FormatMarkdown {
		return []byte(md), nil
	}

	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return nil, errors.NewInternal(err)
	}
	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html lang=\"es\">\n<head>\n<meta charset=\"utf-8\">\n<title>")
	out.WriteString(html.EscapeString(title(s)))
	out.WriteString("</title>\n</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

// Markdown renders the transcript as Markdown.
func Markdown(s *State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title(s))
	fmt.Fprintf(&sb, "- Sesión: `%s`\n", s.ID)
	if s.Model != "" {
		fmt.Fprintf(&sb, "- Modelo: `%s`\n", s.Model)
	}
	if s.ProjectID != "" {
		fmt.Fprintf(&sb, "- Proyecto: `%s`\n", s.ProjectID)
	}
	fmt.Fprintf(&sb, "- Creada: %s\n", s.CreatedAt.UTC().Format(time.RFC3339))

	for _, m := range s.Messages {
		fmt.Fprintf(&sb, "\n## %s · %s\n\n", roleLabel(m.Role), m.Timestamp.UTC().Format("2006-01-02 15:04"))
		sb.WriteString(strings.TrimSpace(m.Content))
		sb.WriteString("\n")
		if len(m.Capabilities) > 0 {
			fmt.Fprintf(&sb, "\n_Capacidades: %s_\n", strings.Join(m.Capabilities, ", "))
		}
	}
	return sb.String()
}

func title(s *State) string {
	if s.Title != "" {
		return s.Title
	}
	return "Sesión " + s.ID
}

func roleLabel(r llm.Role) string {
	switch r {
	case llm.RoleUser:
		return "Usuario"
	case llm.RoleAssistant:
		return "Arquitecto"
	case llm.RoleSystem:
		return "Sistema"
	}
	return string(r)
}
