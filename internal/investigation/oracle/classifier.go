package oracle

import (
	"context"
	"strings"

	"diligence/internal/sector"
)

// Classifier picks a sector policy before the assessment call. It is the
// optional pre-classification mode; by default the assessment call reports
// detectedSector itself.
type Classifier struct {
	invoker *Invoker
}

func NewClassifier(invoker *Invoker) *Classifier {
	return &Classifier{invoker: invoker}
}

// Classify asks the oracle for a sector key and resolves its answer. Any
// failure, or an answer that does not name a sector, returns fallback
// unchanged.
func (c *Classifier) Classify(ctx context.Context, evidence string, fallback sector.Resolution) sector.Resolution {
	prompt, err := ClassifyPrompt(evidence)
	if err != nil {
		return fallback
	}
	out, err := c.invoker.call(ctx, opClassify, prompt)
	if err != nil {
		return fallback
	}

	answer := strings.Trim(strings.TrimSpace(out), "\"'`.")
	if line, _, ok := strings.Cut(answer, "\n"); ok {
		answer = strings.TrimSpace(line)
	}
	res := sector.Resolve(answer)
	if res.Confidence == sector.ConfidenceLow {
		return fallback
	}
	res.Requested = fallback.Requested
	res.AutoDetect = fallback.AutoDetect
	c.invoker.logger.DebugContext(ctx, "sector preclassified",
		"sector", res.Key(),
		"confidence", res.Confidence,
	)
	return res
}
