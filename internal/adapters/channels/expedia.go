package channels

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"staysync/internal/domain"
)

// expedia speaks the EPS-style JSON API: basic auth, one document per push
// type, accepted/rejected entries listed in the response.
type expedia struct {
	rc      *restClient
	hotelID string
}

func newExpedia(base string, creds domain.Credentials, rps int) *expedia {
	user, pass := creds["username"], creds["password"]
	return &expedia{
		rc: newRESTClient("expedia", base, rps, func(r *http.Request) {
			r.SetBasicAuth(user, pass)
		}),
		hotelID: creds["hotel_id"],
	}
}

type expediaEntry struct {
	Ref       string `json:"ref"`
	RoomType  string `json:"roomType"`
	RatePlan  string `json:"ratePlan,omitempty"`
	Occupancy int    `json:"occupancy,omitempty"`
	Date      string `json:"date"`
	Rate      string `json:"rate,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Count     int    `json:"count,omitempty"`
	Closed    *bool  `json:"closed,omitempty"`
}

type expediaResponse struct {
	Entries []struct {
		Ref      string `json:"ref"`
		Accepted bool   `json:"accepted"`
		Error    string `json:"error"`
	} `json:"entries"`
}

func (e *expedia) TestConnection(ctx context.Context) (domain.ConnectionStatus, error) {
	err := e.rc.get(ctx, "/properties/"+e.hotelID+"/status", nil)
	return connStatus(err)
}

func (e *expedia) SyncRates(ctx context.Context, propertyID int64, items []domain.RatePayload) (domain.SyncResult, error) {
	entries := make([]expediaEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, expediaEntry{
			Ref:       it.Key(),
			RoomType:  it.RoomCategory,
			RatePlan:  string(it.Plan),
			Occupancy: occupancyGuests(it.Occupancy),
			Date:      it.Date.Format(time.DateOnly),
			Rate:      minorToDecimal(it.PriceMinor),
			Currency:  it.Currency,
		})
	}
	return e.push(ctx, "/properties/"+e.hotelID+"/rates", "rates", entries)
}

func (e *expedia) SyncInventory(ctx context.Context, propertyID int64, items []domain.InventoryPayload) (domain.SyncResult, error) {
	entries := make([]expediaEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, expediaEntry{
			Ref:      it.Key(),
			RoomType: it.RoomCategory,
			Date:     it.Date.Format(time.DateOnly),
			Count:    it.Available,
		})
	}
	return e.push(ctx, "/properties/"+e.hotelID+"/inventory", "inventory", entries)
}

func (e *expedia) SyncAvailability(ctx context.Context, propertyID int64, items []domain.AvailabilityPayload) (domain.SyncResult, error) {
	entries := make([]expediaEntry, 0, len(items))
	for _, it := range items {
		closed := !it.Open
		entries = append(entries, expediaEntry{
			Ref:      it.Key(),
			RoomType: it.RoomCategory,
			Date:     it.Date.Format(time.DateOnly),
			Closed:   &closed,
		})
	}
	return e.push(ctx, "/properties/"+e.hotelID+"/availability", "availability", entries)
}

func (e *expedia) push(ctx context.Context, path, kind string, entries []expediaEntry) (domain.SyncResult, error) {
	start := time.Now()
	body := struct {
		Entries []expediaEntry `json:"entries"`
	}{Entries: entries}

	var resp expediaResponse
	if err := e.rc.post(ctx, path, body, &resp); err != nil {
		return failedResult(len(entries), start), fmt.Errorf("expedia %s push: %w", kind, err)
	}
	var failures []domain.ItemFailure
	for _, en := range resp.Entries {
		if !en.Accepted {
			failures = append(failures, domain.ItemFailure{Item: en.Ref, Reason: en.Error})
		}
	}
	return buildResult(len(entries), failures, start), nil
}
