// Package assembler turns a request, its evidence outcomes and the selected
// sector policy into the bounded text handed to the risk oracle.
//
// Assembly is pure and never fails: oversize input is cut to fixed character
// budgets, and the same input always yields the same text.
package assembler

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"

	"diligence/internal/evidence/sources"
	"diligence/internal/investigation/models"
	"diligence/internal/sector"
	pstrings "diligence/pkg/platform/strings"
)

// Status lines distinguish "checked, nothing found" from "not checked".
const (
	lineFound       = "FOUND"
	lineNotFound    = "CHECKED - NOTHING FOUND"
	lineUnavailable = "NOT CHECKED - SOURCE UNAVAILABLE"
)

const (
	documentChunkSize = 1000
	maxCauseChars     = 200
)

// Budget caps each part of the context in characters.
type Budget struct {
	Total         int
	PerSource     int
	Supplementary int
	Document      int
}

// DefaultBudget is used for zero budget fields.
var DefaultBudget = Budget{
	Total:         24000,
	PerSource:     3000,
	Supplementary: 4000,
	Document:      8000,
}

func (b Budget) withDefaults() Budget {
	if b.Total <= 0 {
		b.Total = DefaultBudget.Total
	}
	if b.PerSource <= 0 {
		b.PerSource = DefaultBudget.PerSource
	}
	if b.Supplementary <= 0 {
		b.Supplementary = DefaultBudget.Supplementary
	}
	if b.Document <= 0 {
		b.Document = DefaultBudget.Document
	}
	return b
}

// SourceSummary is the one-line trace of an outcome as it was presented.
type SourceSummary struct {
	Kind      sources.Kind   `json:"kind"`
	Status    sources.Status `json:"status"`
	Line      string         `json:"line"`
	Truncated bool           `json:"truncated,omitempty"`
}

// EvidenceContext is the request-scoped input of the oracle call.
type EvidenceContext struct {
	// Text is the subject and evidence sections.
	Text string
	// PolicyRules is the rule text of the selected sector policy.
	PolicyRules string
	Policy      sector.Key
	Sources     []SourceSummary
	Truncated   bool
}

// Assembler builds evidence contexts.
type Assembler struct {
	budget   Budget
	splitter textsplitter.TextSplitter
}

// New creates an assembler. Zero budget fields take the defaults.
func New(budget Budget) *Assembler {
	return &Assembler{
		budget: budget.withDefaults(),
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(documentChunkSize),
			textsplitter.WithChunkOverlap(0),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
		),
	}
}

// Budget returns the effective budget.
func (a *Assembler) Budget() Budget { return a.budget }

// Assemble renders the context. Outcomes are presented in task order.
func (a *Assembler) Assemble(req models.Request, outcomes []sources.Outcome, res sector.Resolution) EvidenceContext {
	ec := EvidenceContext{
		PolicyRules: res.Policy.RulesText(),
		Policy:      res.Key(),
		Sources:     make([]SourceSummary, 0, len(outcomes)),
	}

	var b strings.Builder
	writeSubject(&b, req)

	b.WriteString("\nEVIDENCE SOURCES\n")
	if len(outcomes) == 0 {
		b.WriteString("No evidence sources were queried.\n")
	}
	for i, o := range outcomes {
		block, summary := a.renderOutcome(i+1, o)
		b.WriteString(block)
		ec.Sources = append(ec.Sources, summary)
		if summary.Truncated {
			ec.Truncated = true
		}
	}

	if req.Supplementary != "" {
		text, cut := pstrings.Truncate(req.Supplementary, a.budget.Supplementary)
		ec.Truncated = ec.Truncated || cut
		b.WriteString("\nSUPPLEMENTARY INFORMATION (provided by the requester, unverified)\n")
		b.WriteString(text)
		b.WriteString("\n")
	}

	if req.DocumentText != "" {
		text, cut := a.excerpt(req.DocumentText)
		ec.Truncated = ec.Truncated || cut
		b.WriteString("\nDOCUMENT EXCERPT\n")
		b.WriteString(text)
		b.WriteString("\n")
	}

	text, cut := pstrings.Truncate(strings.TrimRight(b.String(), "\n"), a.budget.Total)
	ec.Text = text
	ec.Truncated = ec.Truncated || cut
	return ec
}

// WithPolicy swaps the policy rules, used when the sector is settled after
// assembly.
func (ec EvidenceContext) WithPolicy(res sector.Resolution) EvidenceContext {
	ec.PolicyRules = res.Policy.RulesText()
	ec.Policy = res.Key()
	return ec
}

func writeSubject(b *strings.Builder, req models.Request) {
	b.WriteString("SUBJECT\n")
	fmt.Fprintf(b, "Kind: %s\n", orDefault(string(req.SubjectKind), string(models.SubjectParty)))
	fmt.Fprintf(b, "Name: %s\n", req.Name)
	if req.Jurisdiction != "" {
		fmt.Fprintf(b, "Jurisdiction: %s\n", req.Jurisdiction)
	}
	if len(req.Identifiers) > 0 {
		b.WriteString("Identifiers:\n")
		for _, k := range sortedKeys(req.Identifiers) {
			fmt.Fprintf(b, "  %s: %s\n", k, req.Identifiers[k])
		}
	}
	fmt.Fprintf(b, "Declared sector: %s\n", orDefault(req.Sector, sector.AutoDetect))
}

func (a *Assembler) renderOutcome(n int, o sources.Outcome) (string, SourceSummary) {
	summary := SourceSummary{Kind: o.Kind, Status: o.Status}
	header := fmt.Sprintf("[%d] %s (%s): ", n, o.Kind.Label(), o.Kind)

	switch o.Status {
	case sources.StatusFound:
		summary.Line = lineFound
		body := renderEvidence(o.Evidence)
		body, summary.Truncated = pstrings.Truncate(body, a.budget.PerSource)
		return header + lineFound + "\n" + pstrings.Indent(body, "    ") + "\n", summary
	case sources.StatusNotFound:
		summary.Line = fmt.Sprintf("%s (%s)", lineNotFound, shortCause(orDefault(o.Reason, "no matching record")))
	default:
		summary.Line = fmt.Sprintf("%s (%s)", lineUnavailable, shortCause(describeFailure(o)))
	}
	return header + summary.Line + "\n", summary
}

func renderEvidence(ev *sources.Evidence) string {
	if ev == nil {
		return "No facts returned."
	}
	var b strings.Builder
	if ev.SourceID != "" {
		fmt.Fprintf(&b, "Record: %s\n", ev.SourceID)
	}
	fmt.Fprintf(&b, "Match confidence: %.2f\n", ev.Confidence)
	if !ev.CheckedAt.IsZero() {
		fmt.Fprintf(&b, "Checked at: %s\n", ev.CheckedAt.UTC().Format(time.RFC3339))
	}
	for _, k := range sortedKeys(ev.Facts) {
		fmt.Fprintf(&b, "%s: %s\n", k, renderValue(ev.Facts[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool, int, int64, float64, float32, int32:
		return fmt.Sprint(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(encoded)
}

func describeFailure(o sources.Outcome) string {
	var pe *sources.ProviderError
	if errors.As(o.Err, &pe) {
		return fmt.Sprintf("%s: %s", pe.Category, pe.Message)
	}
	if cause := o.Cause(); cause != "" {
		return cause
	}
	return string(sources.ErrorInternal)
}

func shortCause(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	out, _ := pstrings.Truncate(s, maxCauseChars)
	return out
}

// excerpt keeps whole document chunks in order until the budget is spent.
// A splitter failure, or a first chunk larger than the budget, falls back to
// a hard cut.
func (a *Assembler) excerpt(doc string) (string, bool) {
	if pstrings.Len(doc) <= a.budget.Document {
		return doc, false
	}
	chunks, err := a.splitter.SplitText(doc)
	if err != nil || len(chunks) == 0 {
		return pstrings.Truncate(doc, a.budget.Document)
	}

	limit := a.budget.Document - pstrings.Len(pstrings.TruncationMarker)
	var kept []string
	used := 0
	for _, c := range chunks {
		n := pstrings.Len(c)
		if len(kept) > 0 {
			n++
		}
		if used+n > limit {
			break
		}
		kept = append(kept, c)
		used += n
	}
	if len(kept) == 0 {
		return pstrings.Truncate(doc, a.budget.Document)
	}
	return strings.Join(kept, "\n") + pstrings.TruncationMarker, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
