package notify

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Desktop gives the operator audible and on-screen feedback at the station.
type Desktop struct {
	enabled bool
	logger  *zap.Logger

	notify func(title, message string) error
	beep   func() error
}

// NewDesktop returns feedback backed by the OS notification service.
func NewDesktop(enabled bool, logger *zap.Logger) *Desktop {
	return &Desktop{
		enabled: enabled,
		logger:  logger.With(zap.String("component", "desktop")),
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
}

// Info shows a toast.
func (d *Desktop) Info(title, message string) {
	if !d.enabled {
		return
	}
	if err := d.notify(title, message); err != nil {
		d.logger.Debug("desktop notification failed", zap.Error(err))
	}
}

// Alert beeps and shows a toast so a failed scan is noticed without looking
// at the screen.
func (d *Desktop) Alert(title, message string) {
	if !d.enabled {
		return
	}
	if err := d.beep(); err != nil {
		d.logger.Debug("beep failed", zap.Error(err))
	}
	if err := d.notify(title, message); err != nil {
		d.logger.Debug("desktop notification failed", zap.Error(err))
	}
}
