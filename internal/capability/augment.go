package capability

import "strings"

const augmentHeader = "SERVICIOS MCP DISPONIBLES PARA ESTA CONSULTA:"

const usageGuidance = `INSTRUCCIONES DE USO DE SERVICIOS MCP:
- Usa estos servicios solo cuando aporten valor a la respuesta.
- Menciona explícitamente qué servicio utilizas y por qué.
- Si propones un diagrama o una plantilla, enumera los servicios AWS involucrados.`

// Augment appends the matched capabilities and fixed usage guidance to base.
// With no matches base is returned unchanged.
func Augment(base string, matches []Match) string {
	if len(matches) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(augmentHeader)
	b.WriteString("\n")
	for _, m := range matches {
		b.WriteString("- ")
		b.WriteString(m.Capability.Name)
		b.WriteString(": ")
		b.WriteString(m.Capability.Description)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(usageGuidance)
	return b.String()
}
