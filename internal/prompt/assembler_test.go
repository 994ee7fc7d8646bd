package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"relatore/internal/knowledge"
)

func TestAssembleBaseOnly(t *testing.T) {
	out := Assemble("You are a compliance consultant.", nil, nil)
	assert.Equal(t, "You are a compliance consultant.", out)
}

func TestAssembleSourceBlocks(t *testing.T) {
	sources := []knowledge.Document{
		{Name: "aml.txt", Text: "AML directive text"},
		{Name: "kyc.txt", Text: "KYC procedures"},
	}
	out := Assemble("base", sources, nil)

	assert.True(t, strings.HasPrefix(out, "base"))
	assert.Contains(t, out, "--- BEGIN KNOWLEDGE SOURCE: aml.txt ---")
	assert.Contains(t, out, "AML directive text")
	assert.Contains(t, out, "--- END KNOWLEDGE SOURCE: aml.txt ---")
	assert.Contains(t, out, "--- BEGIN KNOWLEDGE SOURCE: kyc.txt ---")

	// Blocks appear in caller order.
	assert.Less(t, strings.Index(out, "aml.txt"), strings.Index(out, "kyc.txt"))
}

func TestAssembleTemplateFraming(t *testing.T) {
	templates := []knowledge.Document{{Name: "warning.txt", Text: "Dear {client}"}}
	out := Assemble("base", nil, templates)

	assert.Contains(t, out, "letter templates")
	assert.Contains(t, out, "--- BEGIN LETTER TEMPLATE: warning.txt ---")
	assert.Contains(t, out, "Dear {client}")
	assert.NotContains(t, out, "KNOWLEDGE SOURCE")
}

func TestAssembleDeterministic(t *testing.T) {
	sources := []knowledge.Document{{Name: "b", Text: "2"}, {Name: "a", Text: "1"}}
	templates := []knowledge.Document{{Name: "t", Text: "x"}}

	first := Assemble("base", sources, templates)
	second := Assemble("base", sources, templates)
	assert.Equal(t, first, second)

	// Order matters: the assembler does not sort.
	swapped := Assemble("base", []knowledge.Document{sources[1], sources[0]}, templates)
	assert.NotEqual(t, first, swapped)
}
