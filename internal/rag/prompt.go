package rag

import "strings"

// DefaultRole 默认的角色说明
const DefaultRole = "You are a helpful and expert coding assistant."

// ContextSeparator 检索到的各段上下文之间的分隔
const ContextSeparator = "\n\n"

// BuildPrompt 组装带检索上下文的 prompt：角色、上下文、问题，以及上下文答不了就拒答的要求
func BuildPrompt(role, query string, contextDocs []string) string {
	if role == "" {
		role = DefaultRole
	}

	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n")
	b.WriteString("Answer the following question based on the provided context.\n")
	b.WriteString("If the context does not contain the answer, state that you cannot answer based on the available information.\n")
	b.WriteString("Do not make up information.\n\n")

	b.WriteString("CONTEXT:\n")
	b.WriteString(strings.Join(contextDocs, ContextSeparator))
	b.WriteString("\n\n")

	b.WriteString("QUESTION:\n")
	b.WriteString(query)
	b.WriteString("\n\n")

	b.WriteString("ANSWER:\n")
	return b.String()
}
