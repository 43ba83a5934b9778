package service

import (
	"strings"

	"diligence/internal/evidence/fanout"
	"diligence/internal/evidence/sources"
	"diligence/internal/investigation/models"
)

// ukJurisdictions are the jurisdiction spellings served by Companies House.
var ukJurisdictions = map[string]struct{}{
	"GB": {}, "UK": {}, "GBR": {}, "ENG": {}, "SCT": {}, "WLS": {}, "NIR": {},
	"GB-ENG": {}, "GB-SCT": {}, "GB-WLS": {}, "GB-NIR": {},
	"UNITED KINGDOM": {}, "ENGLAND": {}, "SCOTLAND": {}, "WALES": {},
	"NORTHERN IRELAND": {}, "ENGLAND AND WALES": {},
}

// IsUK reports whether a jurisdiction is served by the UK registry.
func IsUK(jurisdiction string) bool {
	_, ok := ukJurisdictions[strings.ToUpper(strings.TrimSpace(jurisdiction))]
	return ok
}

// KindSet is the part of the source registry the planner needs.
type KindSet interface {
	Has(kind sources.Kind) bool
}

// Planner turns a request into evidence tasks. Only registered sources are
// planned, so an unconfigured provider is skipped rather than reported as
// unavailable.
type Planner struct {
	sources KindSet
}

func NewPlanner(ks KindSet) *Planner {
	return &Planner{sources: ks}
}

// Plan returns the tasks in a fixed order: company registry, aircraft
// registry, sanctions screening, web search.
func (p *Planner) Plan(req models.Request) []fanout.Task {
	name := req.Name
	var tasks []fanout.Task
	add := func(kind sources.Kind, params sources.Params) {
		if p.sources.Has(kind) {
			tasks = append(tasks, fanout.Task{Kind: kind, Params: params})
		}
	}

	switch {
	case IsUK(req.Jurisdiction) && p.sources.Has(sources.KindCompaniesHouse):
		params := sources.Params{"name": name}
		if number := req.Identifier(models.IdentifierCompanyNumber); number != "" {
			params["company_number"] = number
		}
		add(sources.KindCompaniesHouse, params)
	case IsUK(req.Jurisdiction):
		add(sources.KindOpenCorporates, sources.Params{"name": name, "jurisdiction": "gb"})
	default:
		params := sources.Params{"name": name}
		if req.Jurisdiction != "" {
			params["jurisdiction"] = req.Jurisdiction
		}
		add(sources.KindOpenCorporates, params)
	}

	if reg := req.Identifier(models.IdentifierAircraftRegistration); reg != "" {
		add(sources.KindAviationRegistry, sources.Params{"registration": reg, "name": name})
	}

	sanctions := sources.Params{"name": name}
	if req.Jurisdiction != "" {
		sanctions["jurisdiction"] = req.Jurisdiction
	}
	add(sources.KindSanctions, sanctions)
	add(sources.KindWebSearch, sources.Params{"name": name})
	return tasks
}
