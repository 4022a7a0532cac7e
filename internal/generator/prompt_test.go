package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("Why was the patient given antibiotics?", []string{
		"Assessment: community-acquired pneumonia.",
		"Plan: ceftriaxone and azithromycin.",
	})

	want := "You are a helpful clinical assistant. Based on the following information, answer the user's question accurately and clearly.\n" +
		"\n" +
		"Context:\n" +
		"Assessment: community-acquired pneumonia.\n" +
		"---\n" +
		"Plan: ceftriaxone and azithromycin.\n" +
		"\n" +
		"Question: Why was the patient given antibiotics?\n" +
		"Answer:"
	assert.Equal(t, want, got)
}

func TestBuildPrompt_SingleContext(t *testing.T) {
	got := BuildPrompt("q", []string{"only"})
	assert.Contains(t, got, "Context:\nonly\n\nQuestion: q\nAnswer:")
	assert.NotContains(t, got, "---")
}
