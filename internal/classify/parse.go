package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/civicline/civicline/pkg/civic"
)

// buildPrompt produces the classification instruction for one complaint.
func buildPrompt(query string) string {
	return fmt.Sprintf(`You are a smart city civic issue classifier AI. Analyze the citizen query and respond with JSON only.

Query: %q

Classify and provide:
1. requestType: "valid", "invalid", or "garbage"
   - valid: Legitimate complaint needing attention
   - invalid: Unclear or incomplete info
   - garbage: Spam/nonsense

2. department: Choose ONE short name:
   - "General" - general complaints, miscellaneous issues
   - "Plumbing" - water supply, leaks, drainage, sewerage
   - "Electrical" - power outages, streetlights, electrical faults
   - "Roadways" - potholes, road repairs, traffic signals, construction
   - "Cleaning and Sanitation" - garbage collection, waste management, cleanliness
   - "Public Health" - mosquitoes, disease prevention, health hazards

3. simplifiedSummary: 1-2 sentence summary

4. priority: "low", "medium", "high", or "urgent"
   - urgent: Life-threatening, major failure
   - high: Health hazard, significant impact
   - medium: Needs attention soon
   - low: Minor, can be scheduled

5. confidence: 0-100 confidence score

6. reasoning: Brief classification explanation

7. suggestedActions: Array of 2-3 next steps

RESPOND ONLY WITH VALID JSON - NO MARKDOWN OR EXTRA TEXT.`, query)
}

// parseResult turns the service's generated text into a structured result.
// The service sometimes wraps its JSON in a markdown code fence despite being
// told not to; any such wrapper is stripped before parsing.
func parseResult(raw string) (civic.ClassificationResult, error) {
	cleaned := stripFences(raw)

	var result civic.ClassificationResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return civic.ClassificationResult{}, fmt.Errorf("parse classification: %w", err)
	}

	if result.RequestType == "" || result.Department == "" || result.SimplifiedSummary == "" {
		return civic.ClassificationResult{}, fmt.Errorf("parse classification: missing required fields")
	}

	return result, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and trims whitespace.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop a language tag like "json" on the opening fence line.
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
