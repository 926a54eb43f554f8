// Package conversation defines chat messages and the fenced code block
// extraction shared by the assistant and the history replay.
package conversation
