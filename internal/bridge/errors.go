package bridge

import (
	"github.com/atu-ide/bizbridge/internal/i18n"
	"github.com/atu-ide/bizbridge/internal/models"
)

// ShowErrorMessage routes a failed outcome to the notifier by severity.
// It does nothing for error_id 0. Unknown levels are shown as info.
func (s *Service) ShowErrorMessage(e *models.ResponseError) {
	if !e.IsError() {
		return
	}

	msg := s.describe(e.ErrorDesc)

	switch e.ErrorLevel {
	case models.Warning:
		s.notifier.Warn(msg)
	case models.SeriousError:
		s.notifier.Error(msg)
	default:
		s.notifier.Info(msg)
	}

	if s.metrics != nil {
		s.metrics.NotificationsTotal.WithLabelValues(levelLabel(e.ErrorLevel)).Inc()
	}
}

// describe resolves the display text; keys go through the localizer
func (s *Service) describe(d models.ErrorDesc) string {
	if !d.DescKey {
		return d.Desc
	}
	if s.localizer == nil {
		return i18n.Format(d.Desc, d.Params...)
	}
	return s.localizer.Localize(d.Desc, d.Params...)
}

// levelLabel keeps the notification metric to a fixed label set
func levelLabel(l models.ErrorLevel) string {
	switch l {
	case models.Warning, models.NormalError, models.SeriousError:
		return l.String()
	default:
		return "unknown"
	}
}
