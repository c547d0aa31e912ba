package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"AdvisoryScanner/internal/domain"
)

const promptTemplate = `Extract the **affected product** from this security advisory or news item.

## Item
Title: %s
Content: %s

## Rules
- Name the exact product, library or framework where the vulnerability lives.
- Prefer a concrete product name over a general technology.
- Examples:
  - "RedisGraph 2.x vulnerability" -> affected_product: "redisgraph"
  - "NestJS authentication bypass" -> affected_product: "nestjs"
  - "Spring Boot Actuator vulnerability" -> affected_product: "spring boot"
  - "n8n remote code execution" -> affected_product: "n8n"
  - "AWS EKS privilege escalation" -> affected_product: "eks"
  - "FortiOS SSL VPN flaw" -> affected_product: "fortios"
- Use "none" when no specific product is affected.

## Also extract
- severity (critical/high/medium/low)
- a one-line summary (at most 80 characters)

Answer with JSON only:
{"affected_product": "product", "severity": "severity", "summary": "summary"}`

// BuildPrompt renders the extraction prompt for item. The description is
// cut to limit runes.
func BuildPrompt(item domain.Item, limit int) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(item.Title), truncate(item.Description, limit))
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
