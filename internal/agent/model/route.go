package model

// RouteDecision is the structured answer of the routing model.
type RouteDecision struct {
	// RAG is true when document context must be fetched before answering.
	RAG          bool   `json:"rag"`
	DocumentName string `json:"document_name,omitempty"`
	// RAGQuery and AgentQuery split a combined query into its document part
	// and its personal-data part.
	RAGQuery   string `json:"rag_query,omitempty"`
	AgentQuery string `json:"agent_query,omitempty"`
}
