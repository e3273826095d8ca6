// Package console renders session events for the operator and reads
// answers to prompts.
//
// The session and pipeline only emit Events; all formatting lives in
// Renderer. Prompter reads one line per question and honours context
// cancellation, so an interrupt unblocks a pending prompt.
package console
