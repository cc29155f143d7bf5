package preprocess

import (
	"fmt"
	"strings"
)

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func chunkPrompt(fileName, fileType, chunk string, index, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are summarizing %s content for performance analysis.\n", orDefault(fileType, "file"))
	fmt.Fprintf(&b, "File: %s\n", fileName)
	fmt.Fprintf(&b, "Chunk %d of %d\n", index+1, total)
	b.WriteString("Summarize key performance signals, metrics, errors, and anomalies in under 180 words. ")
	b.WriteString("Use concise bullet points when possible. Focus on latency, throughput, errors, resource saturation, and lock/GC warnings. ")
	b.WriteString("Do NOT add extra commentary or conclusions beyond what appears in this chunk.\n\n")
	b.WriteString("Chunk Content:\n")
	b.WriteString("----------------\n")
	b.WriteString(chunk)
	b.WriteString("\n")
	return b.String()
}

func metaPrompt(fileName, fileType string, chunkSummaries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", fileName)
	fmt.Fprintf(&b, "Type: %s\n", orDefault(fileType, FileTypeUnknown))
	b.WriteString("You are consolidating multiple partial summaries for this file. ")
	b.WriteString("Combine them into a single meta-summary (max 220 words) highlighting key signals, metrics, and anomalies. ")
	b.WriteString("Avoid repetition. Keep bullet structure tight.\n\n")
	b.WriteString("Partial Summaries:\n")
	b.WriteString("------------------\n")
	b.WriteString(strings.Join(chunkSummaries, "\n\n"))
	return b.String()
}
