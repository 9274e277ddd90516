package service

import (
	"fmt"
	"strings"
)

const answerSystemPrompt = `You are a medical document assistant. Answer questions using ONLY the medical documents supplied in the context.

Rules:
1. Use only information that is explicitly stated in the supplied context.
2. If the answer is not in the context, say explicitly that the information is not available in the provided documents.
3. Never infer or invent medical facts that the documents do not state.
4. Always name the source document and section for every statement.
5. Preserve numbers, dates and measurements exactly as written.

Start with a direct answer when one exists, then the citations. If only part of the answer is available, say which part is missing.`

const reportSystemPrompt = `You are a medical report generator. Build report sections using ONLY the information in the supplied documents.

Rules:
1. Extract content exactly as it appears in the source documents.
2. Do not paraphrase or rewrite unless a summary is explicitly requested.
3. Preserve all medical data, numbers, dates and measurements exactly.
4. Organize the content under the requested section.
5. Indicate which document each piece of information comes from.
6. If the section has no available data, state this clearly.

Keep tables and structured data in their original layout and cite a document for all content.`

const (
	noEvidenceAnswer  = "I cannot find any relevant information in the provided documents to answer your question."
	generationFailure = "I encountered an error while processing your question. Please try again."
)

func answerUserMessage(context, question string) string {
	return fmt.Sprintf("Context from medical documents:\n%s\n\nQuestion: %s\n\nPlease answer based only on the information provided in the context above. Include specific citations.", context, question)
}

func sectionQuery(name string) string {
	return name + " medical findings data"
}

func noSectionEvidence(name string) string {
	return fmt.Sprintf("No relevant information found for %s section.", name)
}

func sectionFailure(name string) string {
	return fmt.Sprintf("Error generating %s section.", name)
}

func sectionPrompt(name, requirements, context string) string {
	if strings.TrimSpace(requirements) == "" {
		requirements = "Extract all relevant information for " + name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate the %q section for a medical report using the provided context.\n\n", name)
	fmt.Fprintf(&b, "Context from medical documents:\n%s\n\n", context)
	fmt.Fprintf(&b, "Section Requirements: %s\n\n", requirements)
	b.WriteString("Instructions:\n")
	b.WriteString("1. Extract content exactly as it appears in the source documents\n")
	fmt.Fprintf(&b, "2. Organize information clearly under the %q heading\n", name)
	b.WriteString("3. Include all relevant tables, data, and measurements\n")
	b.WriteString("4. Cite source documents for each piece of information\n")
	b.WriteString("5. Maintain professional medical report formatting\n\n")
	b.WriteString("Generate the section content now:")
	return b.String()
}
