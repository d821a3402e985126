// Package mcp exposes matching cycles and their results to MCP clients.
package mcp

const (
	name         = "prodmatch"
	instructions = `MCP Server 'prodmatch' matches products against category guidelines and reports which products comply.

When to use these tools:
- Checking which products currently match or fail their category guidelines
- Understanding why a specific product was rejected
- Re-running matching after editing the product or guideline files

REQUIRED workflow:
1. Use 'get_status' to see whether a cycle is running and how the last one ended
2. Use 'get_results' to read the partition currently on disk, including the reason for every unmatched product
3. After editing input files, use 'run_cycle' to re-run matching, then 'get_results' again
4. If a cycle failed, use 'get_logs' to read recent log lines

IMPORTANT: 'run_cycle' fails if a cycle is already in flight. Wait and check 'get_status' instead of retrying immediately.
`

	maxReasonLen = 2000
	defaultLines = 50
)

// truncateString truncates a string to maxLen characters with ellipsis if needed.
func truncateString(str string, maxLen int) string {
	if str == "" {
		return ""
	}
	if len(str) > maxLen {
		return str[:maxLen] + "\n[OUTPUT TRUNCATED]"
	}

	return str
}
