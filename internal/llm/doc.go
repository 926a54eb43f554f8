// Package llm defines the provider-neutral completion contract used by the
// assistant: a prompt plus an optional structured context in, generated text
// plus token usage out. Concrete providers live in sub-packages.
package llm
