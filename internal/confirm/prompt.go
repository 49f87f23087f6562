package confirm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/core-sentiment/pageview-cli/internal/model"
)

// errUnparseable marks a model response the verdict parser could not use.
// The confirmer treats it like a timeout and retries the batch.
var errUnparseable = errors.New("unparseable model response")

// systemPrompt instructs the model to confirm or reject each provisional
// classification. The JSON-only contract keeps parsing deterministic.
const systemPrompt = `You are a precise data analyst validating Wikipedia pageview classifications for big tech companies (Amazon, Apple, Meta, Google, Microsoft).

For each page title you receive, decide whether the page is genuinely about the proposed company: its products, services, subsidiaries, executives, or corporate activities. Reject pages that merely contain a matching keyword: people's names, places, bands, unrelated products, generic words.

Examples:
- "IPhone_15" proposed Apple: keep, it is an Apple product.
- "Apple_pie" proposed Apple: reject, it is food.
- "Windows_(band)" proposed Microsoft: reject, it is a music group.
- "Amazon_rainforest" proposed Amazon: reject, it is a geographic region.

Respond with JSON only, no prose, using exactly this shape:
{"verdicts": [{"page_title": "<title exactly as given>", "keep": true}]}`

// buildPrompt renders one batch of candidates as the user message.
func buildPrompt(batch []model.CandidateRecord) string {
	var b strings.Builder
	b.WriteString("Validate the following page titles:\n\n")
	for _, r := range batch {
		fmt.Fprintf(&b, "- %q proposed %s\n", r.PageTitle, r.Resolution.Company)
	}
	b.WriteString("\nReturn a verdict for every title.")
	return b.String()
}

type verdict struct {
	PageTitle string `json:"page_title"`
	Keep      bool   `json:"keep"`
}

type verdictsResponse struct {
	Verdicts []verdict `json:"verdicts"`
}

// parseVerdicts extracts per-title verdicts from a model response. Markdown
// fences and surrounding prose are tolerated; anything without a parseable
// JSON object is an error so the batch gets retried.
func parseVerdicts(raw string) (map[string]bool, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, eris.Wrap(errUnparseable, "confirm: no JSON object in response")
	}

	var resp verdictsResponse
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &resp); err != nil {
		return nil, eris.Wrapf(errUnparseable, "confirm: parse verdicts: %v", err)
	}
	if len(resp.Verdicts) == 0 {
		return nil, eris.Wrap(errUnparseable, "confirm: empty verdicts")
	}

	out := make(map[string]bool, len(resp.Verdicts))
	for _, v := range resp.Verdicts {
		out[v.PageTitle] = v.Keep
	}
	return out, nil
}
