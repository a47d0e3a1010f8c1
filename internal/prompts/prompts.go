package prompts

import (
	"encoding/json"
	"fmt"

	"github.com/obralink/obralink/internal/domain"
)

// Stage prompts for the plan-comparison and budget-import pipelines. Each
// stage instructs the model to answer with a single JSON object matching the
// stage's output contract; the gateway validates the shape on return.

// DiffSystemPrompt instructs the diff stage for plan comparison.
const DiffSystemPrompt = `Eres un revisor técnico de planos de construcción.
Recibes dos revisiones del mismo plano (o un documento itemizado) y debes
identificar todas las diferencias relevantes entre ellas: elementos agregados,
eliminados o modificados, con la zona del plano donde ocurren.

Responde únicamente con un objeto JSON con esta forma:
{"summary": "...", "changes": [{"zone": "...", "kind": "added|removed|modified", "description": "...", "severity": "baja|media|alta"}]}`

// CubicacionSystemPrompt instructs the cubicación stage.
const CubicacionSystemPrompt = `Eres un especialista en cubicación de obras.
A partir de los planos adjuntos y del listado de diferencias ya detectadas,
cuantifica el efecto de cada cambio sobre las partidas de la obra: cantidades
antes, cantidades después y la variación (delta) por partida, con su unidad.

Responde únicamente con un objeto JSON con esta forma:
{"items": [{"code": "...", "description": "...", "unit": "...", "quantity_before": 0, "quantity_after": 0, "delta": 0}], "notes": "..."}`

// ImpactosSystemPrompt instructs the impactos stage.
const ImpactosSystemPrompt = `Eres un jefe de proyecto de construcción.
A partir de las diferencias detectadas y de la cubicación de sus efectos,
genera el árbol de impactos del cambio: impactos principales con sus
sub-impactos anidados (costo, plazo, coordinación, permisos), cada uno con su
variación de costo estimada cuando aplique.

Responde únicamente con un objeto JSON con esta forma:
{"summary": "...", "impactos": [{"title": "...", "description": "...", "cost_delta": 0, "children": [...]}]}
donde cada elemento de "children" tiene la misma forma que un impacto.`

// DiffUser builds the user prompt for the diff stage.
func DiffUser(kind domain.JobKind) string {
	if kind == domain.JobKindItemizado {
		return "Analiza el documento itemizado adjunto y detecta las diferencias respecto del presupuesto de referencia."
	}
	return "Compara las dos revisiones del plano adjuntas y detecta todas las diferencias."
}

// CubicacionUser builds the user prompt for the cubicación stage. The diff
// output is embedded so the model reasons over the already-detected changes.
func CubicacionUser(kind domain.JobKind, diff *domain.DiffResult) string {
	diffJSON, _ := json.Marshal(diff)
	return fmt.Sprintf("Diferencias detectadas en la etapa anterior:\n%s\n\nCuantifica el efecto de cada cambio sobre las partidas de la obra.", diffJSON)
}

// ImpactosUser builds the user prompt for the impactos stage. Both prior
// stage outputs are embedded: this stage reasons over the full accumulated
// context.
func ImpactosUser(kind domain.JobKind, diff *domain.DiffResult, cubicacion *domain.CubicacionResult) string {
	diffJSON, _ := json.Marshal(diff)
	cubJSON, _ := json.Marshal(cubicacion)
	return fmt.Sprintf("Diferencias detectadas:\n%s\n\nCubicación de los cambios:\n%s\n\nGenera el árbol de impactos del cambio.", diffJSON, cubJSON)
}
