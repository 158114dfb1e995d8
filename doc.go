// Package mnemo defines the core data model for the mnemo conversational
// memory service: working memory held per session, long-term memory records
// searchable across sessions, and the filter and search types shared by the
// HTTP and tool-call surfaces.
//
// The service itself is assembled from subpackages:
//
//   - workingmemory: per-session state with summarization and promotion triggers
//   - longterm: indexing, deduplication, and semantic search of memory records
//   - vectorstore: pluggable vector storage backends
//   - llm: provider-agnostic chat completion and embedding clients
//   - tasks: background workers for summarization and extraction
//   - server / mcpserver: the HTTP and MCP tool surfaces
package mnemo
