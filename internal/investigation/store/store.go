// Package store persists finished investigations.
package store

import (
	"errors"

	"diligence/internal/investigation/models"
)

// ErrNoReport is returned when saving an investigation that has no report.
var ErrNoReport = errors.New("investigation has no report")

func checkSavable(inv *models.Investigation) error {
	if inv == nil || inv.Report == nil {
		return ErrNoReport
	}
	return nil
}
