package ports

import (
	"time"

	"github.com/aretw0/photobooth/pkg/domain"
)

// DisplaySurface renders the booth for the user.
// Calls are made while the controller holds its lock and must not block.
type DisplaySurface interface {
	ShowView(view domain.View)
	SetProgressText(current, max int)
	SetCountdownText(value domain.Countdown)
	SetCaptureEnabled(enabled bool)
	ShowTransientMessage(text string, d time.Duration)
	ShowError(text string)
	ShowResults(images []domain.CapturedImage)
}
