// Package tool declares the capability catalog the classifier can grant.
// Tools are declarative here: the core gates which tools a request may carry
// to the provider, it never executes them itself.
package tool

import "github.com/sweetpotato0/lexia/intent"

// Parameter defines a tool parameter.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// Definition describes one tool offered to the model.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// ToJSONSchema returns the definition in the function-call schema format the
// providers expect.
func (d *Definition) ToJSONSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]string, 0)

	for _, param := range d.Parameters {
		prop := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"parameters": map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// catalog holds every tool the platform offers.
var catalog = map[string]Definition{
	intent.ToolBuscarLegislacion: {
		Name:        intent.ToolBuscarLegislacion,
		Description: "Busca artículos de legislación española aplicables a una consulta.",
		Parameters: []Parameter{
			{Name: "consulta", Type: "string", Description: "Texto de la búsqueda", Required: true},
			{Name: "ambito", Type: "string", Description: "Ámbito normativo",
				Enum: []string{"civil", "penal", "laboral", "mercantil", "administrativo"}},
		},
	},
	intent.ToolBuscarJurisprudencia: {
		Name:        intent.ToolBuscarJurisprudencia,
		Description: "Busca jurisprudencia relevante para un supuesto de hecho.",
		Parameters: []Parameter{
			{Name: "supuesto", Type: "string", Description: "Descripción del supuesto", Required: true},
			{Name: "organo", Type: "string", Description: "Órgano judicial preferente"},
		},
	},
	intent.ToolResumirDocumento: {
		Name:        intent.ToolResumirDocumento,
		Description: "Resume un documento aportado al expediente.",
		Parameters: []Parameter{
			{Name: "documento_id", Type: "string", Description: "Identificador del documento", Required: true},
		},
	},
	intent.ToolAnalizarRiesgos: {
		Name:        intent.ToolAnalizarRiesgos,
		Description: "Analiza los riesgos procesales de una posición.",
		Parameters: []Parameter{
			{Name: "posicion", Type: "string", Description: "Posición a evaluar", Required: true},
		},
	},
}

// Lookup returns the definition for a tool name.
func Lookup(name string) (Definition, bool) {
	def, ok := catalog[name]
	return def, ok
}

// SchemasFor renders the schemas for an allowlist, skipping unknown names so
// a stale classifier entry never reaches a provider.
func SchemasFor(allowed []string) []map[string]any {
	out := make([]map[string]any, 0, len(allowed))
	for _, name := range allowed {
		if def, ok := catalog[name]; ok {
			out = append(out, def.ToJSONSchema())
		}
	}
	return out
}
