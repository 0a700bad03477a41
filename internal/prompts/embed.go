// Package prompts provides the import prompt templates with override support.
package prompts

import "embed"

//go:embed import/*.md
var embeddedFS embed.FS
