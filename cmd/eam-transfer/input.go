package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/formats"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/services"
)

func readInput(path string) (*record.File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, withCode(exitUsage, fmt.Errorf("--input is required"))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("open %s: %w", path, err))
	}
	defer func() { _ = f.Close() }()

	parsed, err := formats.Parse(f, path)
	if err != nil {
		if errors.Is(err, formats.ErrUnsupportedFormat) {
			return nil, withCode(exitUsage, err)
		}
		return nil, withCode(exitValidation, fmt.Errorf("parse %s: %w", path, err))
	}
	return parsed, nil
}

func parseEntityType(v string) (schema.EntityType, error) {
	if strings.TrimSpace(v) == "" {
		return "", nil
	}
	t, err := schema.FromTab(v)
	if err != nil {
		return "", withCode(exitUsage, fmt.Errorf("invalid --entity-type: %w", err))
	}
	return t, nil
}

// serviceExit maps service errors onto exit codes. Anything unrecognised is a
// store failure.
func serviceExit(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrValidationFailed):
		return withCode(exitValidation, err)
	case errors.Is(err, services.ErrUnknownEntityType),
		errors.Is(err, services.ErrEmptyBatch),
		errors.Is(err, services.ErrDeleteNotConfirmed),
		errors.Is(err, services.ErrUnsupportedFormat),
		errors.Is(err, formats.ErrUnsupportedFormat):
		return withCode(exitUsage, err)
	default:
		return withCode(exitStore, errors.New(services.ErrorMessage(err)))
	}
}
