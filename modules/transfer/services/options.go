package services

import (
	"time"

	"github.com/sirupsen/logrus"
)

type ImporterOptions struct {
	// YieldEvery is the number of rows after which the importer pauses
	// for YieldPause. A zero pause only yields the processor.
	YieldEvery int
	YieldPause time.Duration

	ProgressEvery int

	// StoreCallTimeout bounds a single store call. Calls are never cut short
	// by cancellation of the batch context.
	StoreCallTimeout time.Duration

	// StrictValidation refuses to import a batch that has validation errors.
	StrictValidation bool

	Logger *logrus.Entry

	Now func() time.Time
}

func (o *ImporterOptions) setDefaults() {
	if o.YieldEvery == 0 {
		o.YieldEvery = 10
	}
	if o.ProgressEvery == 0 {
		o.ProgressEvery = 5
	}
	if o.StoreCallTimeout == 0 {
		o.StoreCallTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
