package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by stores when an id does not exist.
	ErrNotFound     = errors.New("not found")
	ErrInvalidURL   = errors.New("invalid url: must be an absolute http or https address")
	ErrDuplicateURL = errors.New("url already monitored")
)

type URLStatus string

const (
	URLPending    URLStatus = "pending"
	URLProcessing URLStatus = "processing"
	URLDone       URLStatus = "done"
	URLError      URLStatus = "error"
)

// AllURLStatuses lists the lifecycle states in transition order.
var AllURLStatuses = []URLStatus{URLPending, URLProcessing, URLDone, URLError}

// URL is a monitored product page.
type URL struct {
	ID            string     `json:"id"`
	Address       string     `json:"url"`
	Provider      string     `json:"provider"`
	Status        URLStatus  `json:"status"`
	LastError     *string    `json:"last_error,omitempty"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	AddedAt       time.Time  `json:"added_at"`
}

// StatusPatch is written to a URL entity once a scrape attempt ends.
type StatusPatch struct {
	Status        URLStatus
	Provider      string
	LastScrapedAt time.Time
	LastError     *string
}

// PatchFromOutcome derives the URL status update paired with a result.
func PatchFromOutcome(o Outcome) StatusPatch {
	p := StatusPatch{
		Status:        URLDone,
		Provider:      o.Provider,
		LastScrapedAt: o.Timestamp,
	}
	if !o.Succeeded() {
		msg := o.Error
		if msg == "" {
			msg = "unknown error"
		}
		p.Status = URLError
		p.LastError = &msg
	}
	return p
}

type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeManual, ModeAuto:
		return Mode(s), nil
	case "":
		return ModeManual, nil
	default:
		return "", fmt.Errorf("invalid mode %q", s)
	}
}

// Summary aggregates one batch run.
type Summary struct {
	Mode       Mode  `json:"mode"`
	Processed  int   `json:"processed"`
	Succeeded  int   `json:"succeeded"`
	Errors     int   `json:"errors"`
	Remaining  int   `json:"remaining"`
	DurationMs int64 `json:"duration_ms"`
}
