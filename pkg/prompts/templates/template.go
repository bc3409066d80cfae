package prompts

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// DigestPromptConfig holds the configuration for digest prompts
type DigestPromptConfig struct {
	// Template replaces the generated prompt when set
	Template string
	// Sections are rendered as numbered requirements, in SectionOrder
	Sections     map[string]string
	SectionOrder []string
	// OutputFormat is the layout the model must follow
	OutputFormat string
}

// DigestInputVariables are the values a digest prompt must be formatted with
var DigestInputVariables = []string{"handle", "count", "posts"}

// NewDigestPrompt creates a new prompt template for summarizing a batch of posts
func NewDigestPrompt(config DigestPromptConfig) prompts.PromptTemplate {
	if config.Template == "" {
		config.Template = buildDefaultPrompt(config)
	}

	return prompts.NewPromptTemplate(config.Template, DigestInputVariables)
}

// buildDefaultPrompt constructs the prompt from config sections
func buildDefaultPrompt(config DigestPromptConfig) string {
	var promptBuilder strings.Builder

	promptBuilder.WriteString("请对 @{{.handle}} 最近的 {{.count}} 条推文进行中英文对照总结，要求：\n")

	n := 0
	for _, section := range config.SectionOrder {
		content, exists := config.Sections[section]
		if !exists {
			continue
		}
		n++
		promptBuilder.WriteString(fmt.Sprintf("%d. %s\n", n, content))
	}

	promptBuilder.WriteString("\n推文内容：\n{{.posts}}\n")

	if config.OutputFormat != "" {
		promptBuilder.WriteString("\n输出格式：\n")
		promptBuilder.WriteString(config.OutputFormat)
		promptBuilder.WriteString("\n")
	}

	return promptBuilder.String()
}
