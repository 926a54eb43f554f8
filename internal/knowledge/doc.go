// Package knowledge holds the Sui concept cards and Move code snippets served
// by the concept explainer and used to ground assistant prompts.
package knowledge
