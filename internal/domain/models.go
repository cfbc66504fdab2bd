package domain

// ModelOption describe una variante del modelo ofrecida al usuario.
type ModelOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ModelOptions es el catálogo de modelos seleccionables por envío.
var ModelOptions = []ModelOption{
	{
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		Description: "Fast and efficient responses",
	},
	{
		ID:          "gemini-2.5-pro",
		Name:        "Gemini 2.5 Pro",
		Description: "Advanced reasoning and analysis",
	},
}

// KnownModel indica si el id corresponde a un modelo del catálogo.
func KnownModel(id string) bool {
	for _, opt := range ModelOptions {
		if opt.ID == id {
			return true
		}
	}
	return false
}
