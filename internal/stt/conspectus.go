package stt

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// Conspectus is the structured lecture summary the summarization model is
// asked to produce. The render layer consumes the same shape.
type Conspectus struct {
	Topic        string    `json:"topic" jsonschema:"description=The overall topic of the lecture"`
	Sections     []Section `json:"sections" jsonschema:"description=Ordered sections following the lecture structure"`
	KeyTakeaways []string  `json:"key_takeaways" jsonschema:"description=The most important conclusions of the lecture"`
}

type Section struct {
	Title    string   `json:"title" jsonschema:"description=Short section heading"`
	Summary  string   `json:"summary" jsonschema:"description=Several paragraphs summarizing the section"`
	Examples []string `json:"examples,omitempty" jsonschema:"description=Concrete examples mentioned in the section"`
}

// ConspectusSchema returns the JSON schema of Conspectus as a compact
// document suitable for embedding into a model instruction.
func ConspectusSchema() string {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Conspectus{})
	raw, err := json.Marshal(schema)
	if err != nil {
		// Reflect over a static type cannot fail to marshal.
		panic(err)
	}
	return string(raw)
}

// ConspectusInstruction builds the summarization instruction sent along with
// a recognition request. The model answers in Russian with a single JSON
// object matching ConspectusSchema.
func ConspectusInstruction() string {
	var sb strings.Builder
	sb.WriteString("Ты конспектируешь лекцию по её расшифровке. ")
	sb.WriteString("Составь подробный структурированный конспект на русском языке. ")
	sb.WriteString("Сохраняй порядок изложения лектора, не добавляй фактов, которых нет в лекции. ")
	sb.WriteString("Ответь одним JSON-объектом без пояснений, строго по схеме: ")
	sb.WriteString(ConspectusSchema())
	return sb.String()
}
