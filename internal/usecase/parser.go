package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"relator-ai/internal/domain"
)

// fencedBlockRe matches a markdown code fence, optionally tagged json,
// anywhere in the text. Models routinely wrap their answer in one and
// prefix it with reasoning prose.
var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)```")

// ExtractJSON pulls the first JSON document out of free-form model text.
// It tries a fenced code block first, then the first balanced top-level
// object or array found anywhere in the text. Returns "" when the text
// contains nothing JSON-like.
func ExtractJSON(text string) string {
	if m := fencedBlockRe.FindStringSubmatch(text); len(m) > 1 {
		candidate := strings.TrimSpace(m[1])
		if strings.HasPrefix(candidate, "{") || strings.HasPrefix(candidate, "[") {
			return candidate
		}
	}
	return firstBalancedJSON(text)
}

// firstBalancedJSON scans for the first '{' or '[' that opens a balanced
// top-level JSON value, tracking string and escape state so braces inside
// string literals do not confuse the depth count.
func firstBalancedJSON(text string) string {
	for start := 0; start < len(text); start++ {
		open := text[start]
		if open != '{' && open != '[' {
			continue
		}
		if end := balancedEnd(text, start); end > start {
			return text[start : end+1]
		}
	}
	return ""
}

func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Declared response shapes. Schemas stay lax on leaf types because the
// decoders below coerce acceptable alternates (numeric strings and the
// like); the schema's job is required fields and container structure.
const (
	topicsSchemaJSON = `{
		"type": "object",
		"required": ["topics"],
		"properties": {
			"topics": {
				"type": "array",
				"items": {"type": "object", "required": ["title"]}
			}
		}
	}`

	analysisSchemaJSON = `{
		"type": "object",
		"required": ["topic", "thesis", "outcome"],
		"properties": {
			"grounds":   {"type": "array"},
			"citations": {"type": "array"}
		}
	}`

	correctionsSchemaJSON = `{
		"type": "object",
		"required": ["corrections"],
		"properties": {
			"corrections": {
				"type": "array",
				"items": {"type": "object", "required": ["type", "description"]}
			}
		}
	}`

	modelsSchemaJSON = `{
		"type": "object",
		"required": ["models"],
		"properties": {
			"models": {
				"type": "array",
				"items": {"type": "object", "required": ["title", "body"]}
			}
		}
	}`
)

var (
	topicsSchema      = mustCompileSchema(topicsSchemaJSON)
	analysisSchema    = mustCompileSchema(analysisSchemaJSON)
	correctionsSchema = mustCompileSchema(correctionsSchemaJSON)
	modelsSchema      = mustCompileSchema(modelsSchemaJSON)
)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(raw))
	if err != nil {
		panic(fmt.Sprintf("compile response schema: %v", err))
	}
	return schema
}

// decodeShape runs the shared extract, parse, validate pipeline and hands
// the caller a generic document to walk. Every failure comes back as an
// error wrapping one of the parse sentinels; nothing panics past here.
func decodeShape(text string, schema *jsonschema.Schema) (map[string]any, error) {
	raw := ExtractJSON(text)
	if raw == "" {
		return nil, domain.NewDomainError("parse", domain.ErrNoJSONFound, "no JSON object or array in model output")
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, domain.NewDomainError("parse", domain.ErrMalformedJSON, err.Error())
	}

	if result := schema.Validate(doc); !result.IsValid() {
		return nil, domain.NewDomainError("parse", domain.ErrInvalidShape, fmt.Sprintf("%s", result.Error()))
	}
	return doc, nil
}

// fieldErrors accumulates per-field diagnostics so the caller sees every
// failing field at once instead of fixing them one retry at a time.
type fieldErrors []string

func (e *fieldErrors) addf(path, format string, args ...any) {
	*e = append(*e, path+": "+fmt.Sprintf(format, args...))
}

func (e fieldErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return domain.NewDomainError("parse", domain.ErrInvalidShape, strings.Join(e, "; "))
}

func stringAt(obj map[string]any, key, path string, errs *fieldErrors) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		errs.addf(path, "expected string, got %T", v)
		return ""
	}
}

func numberAt(obj map[string]any, key, path string, fallback float64, errs *fieldErrors) float64 {
	v, ok := obj[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			errs.addf(path, "expected number, got %q", n)
			return fallback
		}
		return parsed
	default:
		errs.addf(path, "expected number, got %T", v)
		return fallback
	}
}

// stringSliceAt defaults to an empty slice when absent: downstream code
// iterates these fields and must never see nil.
func stringSliceAt(obj map[string]any, key, path string, errs *fieldErrors) []string {
	v, ok := obj[key]
	if !ok || v == nil {
		return []string{}
	}
	items, ok := v.([]any)
	if !ok {
		errs.addf(path, "expected array, got %T", v)
		return []string{}
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			errs.addf(fmt.Sprintf("%s[%d]", path, i), "expected string, got %T", item)
			continue
		}
		out = append(out, s)
	}
	return out
}

func objectSliceAt(obj map[string]any, key, path string, errs *fieldErrors) []map[string]any {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		errs.addf(path, "expected array, got %T", v)
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			errs.addf(fmt.Sprintf("%s[%d]", path, i), "expected object, got %T", item)
			continue
		}
		out = append(out, m)
	}
	return out
}

// ParseTopics decodes the topic-extraction shape. Category defaults to
// mérito when the model omits it.
func ParseTopics(text string) ([]domain.Topic, error) {
	doc, err := decodeShape(text, topicsSchema)
	if err != nil {
		return nil, err
	}

	var errs fieldErrors
	rawTopics := objectSliceAt(doc, "topics", "topics", &errs)
	topics := make([]domain.Topic, 0, len(rawTopics))
	for i, raw := range rawTopics {
		path := fmt.Sprintf("topics[%d]", i)
		topic := domain.Topic{
			Title:    strings.TrimSpace(stringAt(raw, "title", path+".title", &errs)),
			Category: normalizeCategory(stringAt(raw, "category", path+".category", &errs)),
			Summary:  stringAt(raw, "summary", path+".summary", &errs),
		}
		if topic.Title == "" {
			errs.addf(path+".title", "must not be empty")
			continue
		}
		topics = append(topics, topic)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return topics, nil
}

func normalizeCategory(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case domain.CategoryPreliminar:
		return domain.CategoryPreliminar
	case domain.CategoryPrejudicial:
		return domain.CategoryPrejudicial
	default:
		return domain.CategoryMerito
	}
}

// ParseLegalAnalysis decodes the structured-analysis shape.
func ParseLegalAnalysis(text string) (*domain.LegalAnalysis, error) {
	doc, err := decodeShape(text, analysisSchema)
	if err != nil {
		return nil, err
	}

	var errs fieldErrors
	analysis := &domain.LegalAnalysis{
		Topic:      stringAt(doc, "topic", "topic", &errs),
		Thesis:     stringAt(doc, "thesis", "thesis", &errs),
		Grounds:    stringSliceAt(doc, "grounds", "grounds", &errs),
		Outcome:    stringAt(doc, "outcome", "outcome", &errs),
		Confidence: numberAt(doc, "confidence", "confidence", 0, &errs),
		Citations:  stringSliceAt(doc, "citations", "citations", &errs),
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return analysis, nil
}

// defaultAuditConfidence is assumed when the audit model omits a score.
const defaultAuditConfidence = 0.85

// ParseCorrections decodes the double-check shape, tolerating unknown
// extra fields and defaulting the confidence score.
func ParseCorrections(text string) (*domain.CorrectionsReport, error) {
	doc, err := decodeShape(text, correctionsSchema)
	if err != nil {
		return nil, err
	}

	var errs fieldErrors
	rawCorrections := objectSliceAt(doc, "corrections", "corrections", &errs)
	corrections := make([]domain.Correction, 0, len(rawCorrections))
	for i, raw := range rawCorrections {
		path := fmt.Sprintf("corrections[%d]", i)
		corrections = append(corrections, domain.Correction{
			Type:          strings.ToLower(stringAt(raw, "type", path+".type", &errs)),
			Description:   stringAt(raw, "description", path+".description", &errs),
			OriginalText:  stringAt(raw, "originalText", path+".originalText", &errs),
			CorrectedText: stringAt(raw, "correctedText", path+".correctedText", &errs),
		})
	}
	report := &domain.CorrectionsReport{
		Corrections: corrections,
		Confidence:  numberAt(doc, "confidence", "confidence", defaultAuditConfidence, &errs),
		Summary:     stringAt(doc, "summary", "summary", &errs),
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return report, nil
}

// ParseModelTemplates decodes the bulk model-import shape.
func ParseModelTemplates(text string) ([]domain.ModelTemplate, error) {
	doc, err := decodeShape(text, modelsSchema)
	if err != nil {
		return nil, err
	}

	var errs fieldErrors
	rawModels := objectSliceAt(doc, "models", "models", &errs)
	models := make([]domain.ModelTemplate, 0, len(rawModels))
	for i, raw := range rawModels {
		path := fmt.Sprintf("models[%d]", i)
		models = append(models, domain.ModelTemplate{
			Title:    stringAt(raw, "title", path+".title", &errs),
			Category: normalizeCategory(stringAt(raw, "category", path+".category", &errs)),
			Body:     stringAt(raw, "body", path+".body", &errs),
		})
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return models, nil
}
