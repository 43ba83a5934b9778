package store

import (
	"time"

	"diligence/internal/evidence/sources"
	"diligence/internal/investigation/models"
	"diligence/internal/investigation/report"
	"diligence/internal/sector"
)

func newInvestigation(id, name string, createdAt time.Time) *models.Investigation {
	inv := models.NewInvestigation(id, models.Request{Name: name, Jurisdiction: "GB"}, createdAt)
	for _, s := range []models.State{models.StateSourcesGathering, models.StateContextAssembled, models.StateAwaitingOracle} {
		if err := inv.Transition(s, createdAt); err != nil {
			panic(err)
		}
	}
	inv.Outcomes = []models.OutcomeSummary{
		{Source: sources.KindCompaniesHouse, Status: sources.StatusFound, Detail: "01234567", Attempts: 1},
		{Source: sources.KindSanctions, Status: sources.StatusNotFound, Detail: "no matches", Attempts: 1},
	}
	rep := report.Fallback(report.Meta{Resolution: sector.Resolve("aviation")}, "oracle unavailable")
	if err := inv.ApplyReport(rep, createdAt.Add(time.Second)); err != nil {
		panic(err)
	}
	if err := inv.Transition(models.StatePersisted, createdAt.Add(time.Second)); err != nil {
		panic(err)
	}
	inv.Persisted = true
	return inv
}
