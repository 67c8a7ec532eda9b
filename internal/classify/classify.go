// Package classify maps raw query text to an intent category, the set of
// detected products, and a complexity tier. Classification is a pure
// function of the text and the domain table; an optional generation-backed
// assist handles ambiguous queries, with the heuristic result as the
// unconditional failure path. Classification never errors: an empty
// product set means "route to the default specialist".
package classify

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/structa/switchboard/internal/capability"
	"github.com/structa/switchboard/internal/qa"
	"github.com/structa/switchboard/pkg/formatting"
)

// Classifier detects intent, products, and complexity for inbound queries.
type Classifier struct {
	table  *Table
	assist capability.Generator
	logger *slog.Logger
}

// New builds a Classifier over the given domain table. assist may be nil;
// when set, it is consulted only for queries where no product alias
// matched.
func New(table *Table, assist capability.Generator, logger *slog.Logger) *Classifier {
	return &Classifier{
		table:  table,
		assist: assist,
		logger: logger.With("system", "classifier"),
	}
}

var intentKeywords = map[qa.Intent][]string{
	qa.IntentTroubleshooting: {
		"error", "fail", "failing", "broken", "crash", "troubleshoot",
		"not working", "doesn't work", "fix", "exception", "timeout",
	},
	qa.IntentConfiguration: {
		"configure", "configuration", "config", "setup", "set up",
		"enable", "disable", "install", "settings", "how do i set",
	},
	qa.IntentComparison: {
		" vs ", "versus", "compare", "comparison", "difference between",
		"better than",
	},
}

// Classify produces a read-only Classification for text.
func (c *Classifier) Classify(ctx context.Context, text string) qa.Classification {
	lowered := strings.ToLower(text)

	result := qa.Classification{
		Intent:   detectIntent(lowered),
		Products: c.detectProducts(lowered),
	}
	result.Complexity = complexity(result)

	if len(result.Products) == 0 && c.assist != nil {
		if assisted, ok := c.assistClassify(ctx, text); ok {
			return assisted
		}
	}

	c.logger.DebugContext(ctx, "classified",
		"intent", result.Intent,
		"products", result.Products,
		"complexity", result.Complexity,
	)

	return result
}

func (c *Classifier) detectProducts(lowered string) []string {
	var products []string
	for _, d := range c.table.Domains {
		if d.Product == "" {
			continue
		}
		names := append([]string{strings.ToLower(d.Product)}, d.Aliases...)
		for _, name := range names {
			if name != "" && strings.Contains(lowered, strings.ToLower(name)) {
				products = append(products, d.Product)
				break
			}
		}
	}
	slices.Sort(products)
	return slices.Compact(products)
}

func detectIntent(lowered string) qa.Intent {
	// Comparison wins over the other categories: "compare the TLS config
	// of A and B" is a comparison, not a configuration query.
	for _, intent := range []qa.Intent{qa.IntentComparison, qa.IntentTroubleshooting, qa.IntentConfiguration} {
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lowered, kw) {
				return intent
			}
		}
	}
	return qa.IntentGeneral
}

func complexity(r qa.Classification) qa.Complexity {
	switch {
	case len(r.Products) >= 2:
		return qa.ComplexityCrossProduct
	case r.Intent == qa.IntentComparison:
		return qa.ComplexityMultiHop
	default:
		return qa.ComplexitySimple
	}
}

const assistPrompt = `Classify the question below. Respond with JSON only:
{"intent": "troubleshooting|configuration|comparison|general", "products": ["..."]}
Products must be chosen from: %s. Use an empty list when none apply.

Question: %s`

type assistResponse struct {
	Intent   string   `json:"intent"`
	Products []string `json:"products"`
}

// assistClassify delegates an ambiguous query to the generation capability.
// Any failure falls back to the heuristic result; the classifier contract
// forbids erroring.
func (c *Classifier) assistClassify(ctx context.Context, text string) (qa.Classification, bool) {
	var known []string
	for _, d := range c.table.Domains {
		if d.Product != "" {
			known = append(known, d.Product)
		}
	}

	resp, err := c.assist.Generate(ctx, formatAssistPrompt(known, text), nil)
	if err != nil {
		c.logger.WarnContext(ctx, "classification assist failed, using heuristics", "error", err)
		return qa.Classification{}, false
	}

	parsed, err := formatting.Parse[assistResponse](resp)
	if err != nil {
		c.logger.WarnContext(ctx, "classification assist unparseable, using heuristics", "error", err)
		return qa.Classification{}, false
	}

	result := qa.Classification{Intent: qa.Intent(parsed.Intent)}
	switch result.Intent {
	case qa.IntentTroubleshooting, qa.IntentConfiguration, qa.IntentComparison, qa.IntentGeneral:
	default:
		result.Intent = qa.IntentGeneral
	}

	for _, p := range parsed.Products {
		if d, ok := c.table.ByProduct(p); ok {
			result.Products = append(result.Products, d.Product)
		}
	}
	slices.Sort(result.Products)
	result.Products = slices.Compact(result.Products)
	result.Complexity = complexity(result)

	return result, true
}

func formatAssistPrompt(known []string, text string) string {
	prompt := assistPrompt
	prompt = strings.Replace(prompt, "%s", strings.Join(known, ", "), 1)
	prompt = strings.Replace(prompt, "%s", text, 1)
	return prompt
}
