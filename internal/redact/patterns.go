package redact

import "regexp"

// Pattern defines a secret detection pattern.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// DefaultPatterns returns the built-in secret detection patterns.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:  "aws_access_key",
			Regex: regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		},
		{
			Name:  "github_token",
			Regex: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
		},
		{
			Name:  "stripe_secret_key",
			Regex: regexp.MustCompile(`sk_live_[A-Za-z0-9]{24,}`),
		},
		{
			Name:  "llm_api_key",
			Regex: regexp.MustCompile(`sk-(?:ant-|proj-)?[A-Za-z0-9_\-]{20,}`),
		},
		{
			Name:  "intentd_api_key",
			Regex: regexp.MustCompile(`intentd-[a-z]+-[a-z0-9]{32}`),
		},
		{
			Name:  "private_key",
			Regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		},
		{
			Name:  "connection_string",
			Regex: regexp.MustCompile(`(?:postgres|postgresql|mysql|mongodb|redis)://[^\s]+`),
		},
		{
			Name:  "jwt",
			Regex: regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`),
		},
		{
			Name:  "bearer_token",
			Regex: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.=]{20,}`),
		},
	}
}
