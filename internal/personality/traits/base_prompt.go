package traits

import (
	prompts "github.com/lisanmuaddib/tweet-digest/pkg/prompts/templates"
	langchainprompts "github.com/tmc/langchaingo/prompts"
)

// SystemPrompt sets the summarizer's role for every digest
const SystemPrompt = "你是一个专业的双语总结助手。你需要提供清晰、格式化的中英文对照总结，特别注意在Telegram消息中的显示效果。"

// SectionOrder fixes the order the requirements are listed in
var SectionOrder = []string{"Key Points", "Bilingual", "Metrics", "Layout", "Pinned"}

// BasePromptSections defines the digest requirements
var BasePromptSections = map[string]string{
	"Key Points": "提取3-5个最重要的要点",
	"Bilingual":  "每个要点都包含中英文对照",
	"Metrics":    "数据指标需要用`*加粗*`突出显示",
	"Layout":     "使用清晰的分隔和emoji标记",
	"Pinned":     "标记为[置顶]的推文可能较旧，不要把它当作最新动态",
}

// OutputFormat is the message layout the model must produce
const OutputFormat = `📌 *推文要点总结* | *Tweet Summary*
━━━━━━━━━━━━━━━━━━━━━

1️⃣ 中文要点一
   🔹 English Point 1

2️⃣ 中文要点二
   🔹 English Point 2

3️⃣ 中文要点三
   🔹 English Point 3

━━━━━━━━━━━━━━━━━━━━━
📊 *数据亮点* | *Key Metrics*
• 中文指标 (*具体数字*)
• English metric (*specific number*)`

// NewDigestPrompt creates the bilingual digest prompt template
func NewDigestPrompt() langchainprompts.PromptTemplate {
	config := prompts.DigestPromptConfig{
		Sections:     BasePromptSections,
		SectionOrder: SectionOrder,
		OutputFormat: OutputFormat,
	}

	return prompts.NewDigestPrompt(config)
}
