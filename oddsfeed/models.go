package oddsfeed

import (
	"time"

	"odds-alert-service/models"
)

// Event is one event in a vendor response. The vendor payload is loosely
// typed; this schema defaults missing fields at the ingestion boundary so
// nothing downstream has to deal with absent keys.
type Event struct {
	ID       string      `json:"id"`
	LeagueID string      `json:"league_id"`
	SportID  string      `json:"sport_id"`
	StartsAt string      `json:"starts_at"`
	Status   EventStatus `json:"status"`

	// Odds is keyed by odd (market) ID, then bookmaker ID
	Odds map[string]map[string]BookOdds `json:"odds"`
}

// EventStatus is the vendor's view of an event's state
type EventStatus struct {
	Started   bool   `json:"started"`
	Ended     bool   `json:"ended"`
	Finalized bool   `json:"finalized"`
	Cancelled bool   `json:"cancelled"`
	Live      bool   `json:"live"`
	Period    string `json:"period"`
	Clock     string `json:"clock"`
	HomeScore *int   `json:"home_score"`
	AwayScore *int   `json:"away_score"`
	UpdatedAt string `json:"updated_at"`
}

// BookOdds is one bookmaker's quote for one market
type BookOdds struct {
	Price     string `json:"price"`
	Spread    string `json:"spread"`
	OverUnder string `json:"over_under"`
	Available bool   `json:"available"`
	UpdatedAt string `json:"updated_at"`
}

// parseVendorTime accepts RFC3339; anything else yields nil
func parseVendorTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

// StatusTick converts the vendor event into a normalized status observation
func (e *Event) StatusTick(observedAt time.Time) *models.EventStatusTick {
	return &models.EventStatusTick{
		EventID:         e.ID,
		LeagueID:        e.LeagueID,
		SportID:         e.SportID,
		StartsAt:        parseVendorTime(e.StartsAt),
		Started:         e.Status.Started,
		Ended:           e.Status.Ended,
		Finalized:       e.Status.Finalized,
		Cancelled:       e.Status.Cancelled,
		Live:            e.Status.Live,
		Period:          e.Status.Period,
		Clock:           e.Status.Clock,
		HomeScore:       e.Status.HomeScore,
		AwayScore:       e.Status.AwayScore,
		VendorUpdatedAt: parseVendorTime(e.Status.UpdatedAt),
		ObservedAt:      observedAt,
	}
}

// Summary converts the vendor event into a discovery summary
func (e *Event) Summary() models.EventSummary {
	return models.EventSummary{
		EventID:   e.ID,
		LeagueID:  e.LeagueID,
		SportID:   e.SportID,
		StartsAt:  parseVendorTime(e.StartsAt),
		Started:   e.Status.Started,
		Ended:     e.Status.Ended,
		Finalized: e.Status.Finalized,
		Cancelled: e.Status.Cancelled,
		Live:      e.Status.Live,
	}
}

// VendorUpdatedAt parses the quote's own update timestamp
func (o *BookOdds) VendorUpdatedAt() *time.Time {
	return parseVendorTime(o.UpdatedAt)
}
