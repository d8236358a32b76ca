package rag

import (
	"fmt"
	"strings"

	"github.com/VeritasAI/veritas-engine/engine/domain"
	"github.com/VeritasAI/veritas-engine/engine/semantic"
)

// InsufficientSentinel is the exact phrase the generator is instructed to
// reply with when the supplied context does not contain the answer. Tests
// and callers match on it verbatim.
const InsufficientSentinel = "INSUFFICIENT INFORMATION"

// FallbackResponse is the fixed reply for queries whose retrieved context
// fails validation. It never varies, so callers can detect the fallback path.
const FallbackResponse = "I don't have enough relevant information to answer this question. Please rephrase it or ask about something covered by the knowledge base."

const generateSystem = `You are a careful assistant that answers strictly from the provided context.
Rules:
- Use only facts stated in the context below. Do not use outside knowledge.
- Cite the source tag (e.g. [1]) after each claim you take from it.
- If the context does not contain the answer, reply with exactly: ` + InsufficientSentinel

const factCheckSystem = `You are a fact-checking judge. Given a context and an answer, rate how faithful the answer is to the context.
Reply with a single number between 0.0 and 1.0 and nothing else.
1.0 means every claim in the answer is supported by the context; 0.0 means none are.`

const correctSystem = `You are a conservative editor. Rewrite the draft answer so that every claim is supported by the provided context.
Rules:
- Keep only claims the context supports, citing their source tags.
- Explicitly mark anything you cannot verify as "unverified".
- If nothing in the draft is supported, reply with exactly: ` + InsufficientSentinel

// contextBlock renders retrieved chunks as a numbered, source-attributed
// block for prompting. Page or timestamp metadata is carried into the tag
// when present.
func contextBlock(retrieved []semantic.Scored) string {
	var b strings.Builder
	for i, r := range retrieved {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (source: %s%s)\n%s", i+1, r.Chunk.ID, locationTag(r.Chunk.Metadata), r.Chunk.Text)
	}
	return b.String()
}

func locationTag(md domain.Metadata) string {
	if md == nil {
		return ""
	}
	if page, ok := md[domain.MetaPage]; ok {
		return fmt.Sprintf(", page %v", page)
	}
	if ts, ok := md[domain.MetaTimestamp]; ok {
		return fmt.Sprintf(", at %v", ts)
	}
	return ""
}

func generatePrompt(question string, retrieved []semantic.Scored) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock(retrieved), question)
}

func factCheckPrompt(answer string, retrieved []semantic.Scored) string {
	return fmt.Sprintf("Context:\n%s\n\nAnswer to check:\n%s\n\nFaithfulness score:", contextBlock(retrieved), answer)
}

func correctPrompt(question, draft string, retrieved []semantic.Scored) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nDraft answer to correct:\n%s", contextBlock(retrieved), question, draft)
}
