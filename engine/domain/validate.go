package domain

import (
	"fmt"
	"strings"
	"time"
)

// MinModelYear is the earliest year the installation guides cover.
const MinModelYear = 1940

// modelYearLead is how far model years run ahead of the calendar.
const modelYearLead = 2

// MaxModelYear is the latest model year accepted today.
func MaxModelYear() int { return time.Now().Year() + modelYearLead }

func yearInRange(y int) bool { return y >= MinModelYear && y <= MaxModelYear() }

// ValidateSelector checks a selector is complete and in range. Callers treat
// ErrInvalidSelector as "no selection yet", not as a failure.
func ValidateSelector(s Selector) error {
	if !s.Complete() {
		return NewValidationError("selector", s.String(), ErrInvalidSelector)
	}
	if !yearInRange(s.Year) {
		return NewValidationError("year", fmt.Sprintf("%d", s.Year), ErrYearOutOfRange)
	}
	return nil
}

// ValidateFitment checks a canonicalized record before it is stored.
func ValidateFitment(r FitmentRecord) error {
	if strings.TrimSpace(r.Make) == "" {
		return NewValidationError("make", r.Make, ErrMissingField)
	}
	if strings.TrimSpace(r.Model) == "" {
		return NewValidationError("model", r.Model, ErrMissingField)
	}
	if len(r.Years) > 0 {
		for _, y := range r.Years {
			if !yearInRange(y) {
				return NewValidationError("years", fmt.Sprintf("%d", y), ErrYearOutOfRange)
			}
		}
		return nil
	}
	if r.YearStart == 0 {
		return NewValidationError("yearStart", "", ErrMissingField)
	}
	if !yearInRange(r.YearStart) {
		return NewValidationError("yearStart", fmt.Sprintf("%d", r.YearStart), ErrYearOutOfRange)
	}
	if !yearInRange(r.YearEnd) {
		return NewValidationError("yearEnd", fmt.Sprintf("%d", r.YearEnd), ErrYearOutOfRange)
	}
	if r.YearEnd < r.YearStart {
		return NewValidationError("yearEnd", fmt.Sprintf("%d", r.YearEnd), ErrInvalidRecord)
	}
	return nil
}

// ValidateMaestro checks a canonicalized Maestro entry.
func ValidateMaestro(m MaestroRecord) error {
	if strings.TrimSpace(m.Make) == "" {
		return NewValidationError("make", m.Make, ErrMissingField)
	}
	if strings.TrimSpace(m.Model) == "" {
		return NewValidationError("model", m.Model, ErrMissingField)
	}
	if m.YearStart == 0 {
		return NewValidationError("year", "", ErrMissingField)
	}
	if !yearInRange(m.YearStart) || !yearInRange(m.YearEnd) {
		return NewValidationError("year", fmt.Sprintf("%d-%d", m.YearStart, m.YearEnd), ErrYearOutOfRange)
	}
	return nil
}

// ValidateProduct checks a canonicalized product before it is stored.
func ValidateProduct(p Product) error {
	if p.Key() == "" {
		return NewValidationError("id", "", ErrUnidentifiedProduct)
	}
	if p.Price.IsNegative() {
		return NewValidationError("price", p.Price.String(), ErrInvalidRecord)
	}
	return nil
}
