// Package llm is the model invocation layer used by the specialist workers.
//
// A Model turns a Prompt into text. Failures are reported as *TransientError
// (rate limits, 5xx responses, network errors, timeouts) or *FatalError
// (everything else). Both implement Retryable() so the workflow scheduler can
// decide whether to retry an invocation without inspecting the provider.
//
// Providers:
//   - anthropic: Messages API over net/http
//   - openai: Chat Completions API over net/http
//   - langchain: any OpenAI compatible endpoint through langchaingo
//
// The heuristic provider has no model; New returns nil and workers fall back
// to their built-in narrative.
package llm
