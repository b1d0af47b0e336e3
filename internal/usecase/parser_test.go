package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relator-ai/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			"fenced json block",
			"Segue o resultado:\n```json\n{\"topics\": []}\n```\n",
			`{"topics": []}`,
		},
		{
			"fenced block without tag",
			"```\n{\"order\": [1]}\n```",
			`{"order": [1]}`,
		},
		{
			"embedded in prose",
			`Analisei os autos e concluí que {"order": [2, 1]} é a sequência correta.`,
			`{"order": [2, 1]}`,
		},
		{
			"preceded by reasoning text",
			"Primeiro preciso considerar as preliminares. Depois o mérito.\n\n[{\"title\": \"Horas extras\"}]",
			`[{"title": "Horas extras"}]`,
		},
		{
			"braces inside string literals",
			`{"summary": "pedido de {adicional} noturno"}`,
			`{"summary": "pedido de {adicional} noturno"}`,
		},
		{
			"no json at all",
			"Não foi possível extrair tópicos deste documento.",
			"",
		},
		{
			"unbalanced braces",
			"resultado: { incompleto",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.text))
		})
	}
}

func TestParseTopics(t *testing.T) {
	text := "```json\n" + `{
		"topics": [
			{"title": "Justiça gratuita", "category": "preliminar", "summary": "requerida na inicial"},
			{"title": "Horas extras"},
			{"title": "Prescrição quinquenal", "category": "PREJUDICIAL"}
		]
	}` + "\n```"

	topics, err := ParseTopics(text)
	require.NoError(t, err)
	require.Len(t, topics, 3)

	assert.Equal(t, domain.CategoryPreliminar, topics[0].Category)
	// Missing category defaults to mérito.
	assert.Equal(t, domain.CategoryMerito, topics[1].Category)
	assert.Equal(t, "", topics[1].Summary)
	// Category matching is case-insensitive.
	assert.Equal(t, domain.CategoryPrejudicial, topics[2].Category)
}

func TestParseTopics_MissingRequiredField(t *testing.T) {
	_, err := ParseTopics(`{"topics": [{"summary": "sem título"}]}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidShape)
}

func TestParseTopics_NoJSON(t *testing.T) {
	_, err := ParseTopics("nenhum tópico identificado")
	assert.ErrorIs(t, err, domain.ErrNoJSONFound)
}

func TestParseTopics_MalformedJSON(t *testing.T) {
	_, err := ParseTopics(`{"topics": [}]}`)
	assert.ErrorIs(t, err, domain.ErrMalformedJSON)
}

func TestParseLegalAnalysis_CoercesAndDefaults(t *testing.T) {
	text := `{
		"topic": "Horas extras",
		"thesis": "Devidas além da 8ª diária",
		"outcome": "procedente",
		"confidence": "0.9"
	}`

	analysis, err := ParseLegalAnalysis(text)
	require.NoError(t, err)

	// Numeric string coerced to number.
	assert.Equal(t, 0.9, analysis.Confidence)
	// Optional arrays default to empty, never nil.
	assert.NotNil(t, analysis.Grounds)
	assert.Empty(t, analysis.Grounds)
	assert.NotNil(t, analysis.Citations)
	assert.Empty(t, analysis.Citations)
}

func TestParseLegalAnalysis_ReportsEveryFailingField(t *testing.T) {
	text := `{
		"topic": "Horas extras",
		"thesis": "Devidas",
		"outcome": "procedente",
		"confidence": {"not": "a number"},
		"grounds": "não é array"
	}`

	_, err := ParseLegalAnalysis(text)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidShape)
	// Both field paths appear in one diagnostic.
	assert.Contains(t, err.Error(), "confidence")
	assert.Contains(t, err.Error(), "grounds")
}

func TestParseCorrections_DefaultsConfidence(t *testing.T) {
	text := `{
		"corrections": [
			{"type": "MODIFY", "description": "ajustar fundamentação", "extra": "ignorado"}
		],
		"unknownField": true
	}`

	report, err := ParseCorrections(text)
	require.NoError(t, err)
	require.Len(t, report.Corrections, 1)

	assert.Equal(t, domain.CorrectionModify, report.Corrections[0].Type)
	// Omitted confidence assumes the default.
	assert.Equal(t, 0.85, report.Confidence)
	assert.Equal(t, "", report.Summary)
}

func TestParseCorrections_EmptyList(t *testing.T) {
	report, err := ParseCorrections(`{"corrections": [], "confidence": 0.97, "summary": "sem ressalvas"}`)
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, 0.97, report.Confidence)
}

func TestParseModelTemplates(t *testing.T) {
	text := "```json\n" + `{
		"models": [
			{"title": "Gratuidade", "category": "preliminar", "body": "Defiro os benefícios..."},
			{"title": "Honorários", "body": "Condeno a reclamada..."}
		]
	}` + "\n```"

	models, err := ParseModelTemplates(text)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, domain.CategoryPreliminar, models[0].Category)
	assert.Equal(t, domain.CategoryMerito, models[1].Category)
}
