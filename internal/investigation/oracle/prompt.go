package oracle

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"diligence/internal/investigation/assembler"
	"diligence/internal/investigation/report"
	"diligence/internal/sector"
)

//go:embed assess.tmpl
var assessTemplate string

//go:embed classify.tmpl
var classifyTemplate string

var funcs = template.FuncMap{
	"join": strings.Join,
	"last": func(i int, s []string) bool { return i == len(s)-1 },
}

var (
	assessPrompt   = template.Must(template.New("assess").Funcs(funcs).Parse(assessTemplate))
	classifyPrompt = template.Must(template.New("classify").Funcs(funcs).Parse(classifyTemplate))
)

const dateLayout = "2006-01-02"

type promptData struct {
	Today       string
	PolicyRules string
	Evidence    string
	Truncated   bool
	AutoDetect  bool
	SectorKeys  []string
	Assessments []string
}

// AssessPrompt renders the fixed assessment instructions around an evidence
// context. The oracle is asked to detect the sector when none was declared
// and no earlier classification settled it.
func AssessPrompt(ec assembler.EvidenceContext, res sector.Resolution, today time.Time) (string, error) {
	return render(assessPrompt, promptData{
		Today:       today.UTC().Format(dateLayout),
		PolicyRules: ec.PolicyRules,
		Evidence:    ec.Text,
		Truncated:   ec.Truncated,
		AutoDetect:  (res.AutoDetect || res.Requested == "") && res.Key() == sector.General,
		SectorKeys:  sectorKeys(),
		Assessments: report.RequiredAssessments,
	})
}

// ClassifyPrompt renders the short sector classification prompt.
func ClassifyPrompt(evidence string) (string, error) {
	return render(classifyPrompt, promptData{
		Evidence:   evidence,
		SectorKeys: sectorKeys(),
	})
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func sectorKeys() []string {
	keys := sector.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
