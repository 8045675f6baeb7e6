package model

import (
	"errors"
	"math"
	"testing"
)

func TestSettingsValidateReportsFirstInvalidField(t *testing.T) {
	s := DefaultSettings()
	s.Energy.SwitchCost = -1
	s.Energy.LeakRate = -1
	s.Energy.ZeroBand = math.NaN()

	for i := 0; i < 32; i++ {
		err := s.Validate(10)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected configuration error, got %v", err)
		}
		if cfgErr.Field != "energy.switch_cost" {
			t.Fatalf("attempt %d: expected energy.switch_cost, got %s", i, cfgErr.Field)
		}
	}
}

func TestSettingsValidateOrderWithinGroups(t *testing.T) {
	s := DefaultSettings()
	s.Classifier.MinOccupancy = 2
	s.Classifier.MinCoverage = -1
	s.Classifier.HysteresisTolerance = 0
	s.Classifier.MinSeparation = 0

	for i := 0; i < 32; i++ {
		err := s.Validate(10)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected configuration error, got %v", err)
		}
		if cfgErr.Field != "classifier.min_separation" {
			t.Fatalf("attempt %d: expected classifier.min_separation, got %s", i, cfgErr.Field)
		}
	}
}

func TestDefaultSettingsValid(t *testing.T) {
	if err := DefaultSettings().Validate(10); err != nil {
		t.Fatalf("default settings: %v", err)
	}
	if !errors.Is(DefaultSettings().Validate(-1), ErrConfiguration) {
		t.Fatalf("expected elite count outside population to be rejected")
	}
}
