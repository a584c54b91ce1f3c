package ops

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultSystemPrompt is the base instruction for the architect assistant.
const DefaultSystemPrompt = `Eres un arquitecto de soluciones AWS senior que ayuda a preparar propuestas técnicas y comerciales.

Tu trabajo:
- Entender el requerimiento del cliente haciendo preguntas concretas cuando falte información.
- Proponer arquitecturas basadas en servicios AWS y en el marco Well-Architected.
- Explicar costos aproximados, riesgos y alternativas.
- Responder siempre en español, de forma clara y profesional.

Cuando la arquitectura esté definida, descríbela mencionando explícitamente los servicios AWS que la componen.`

// projectContext renders the project fields sent by the UI as extra
// instructions. Keys are sorted so the prompt is deterministic.
func projectContext(project map[string]any) string {
	if len(project) == 0 {
		return ""
	}
	keys := make([]string, 0, len(project))
	for k := range project {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		switch v := project[k].(type) {
		case nil, map[string]any, []any:
			continue
		default:
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				lines = append(lines, fmt.Sprintf("- %s: %s\n", k, s))
			}
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\nCONTEXTO DEL PROYECTO ACTUAL:\n" + strings.Join(lines, "")
}
