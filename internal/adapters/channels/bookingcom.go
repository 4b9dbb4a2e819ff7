package channels

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"staysync/internal/domain"
)

// bookingCom speaks the booking.com connectivity JSON API: API-key header,
// one batched POST per push, per-item results echoed back.
type bookingCom struct {
	rc      *restClient
	hotelID string
}

func newBookingCom(base string, creds domain.Credentials, rps int) *bookingCom {
	key := creds["api_key"]
	return &bookingCom{
		rc: newRESTClient("booking.com", base, rps, func(r *http.Request) {
			r.Header.Set("X-API-Key", key)
		}),
		hotelID: creds["hotel_id"],
	}
}

type bcomRateItem struct {
	RoomCode  string `json:"room_code"`
	RatePlan  string `json:"rate_plan"`
	Guests    int    `json:"guests"`
	Date      string `json:"date"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	ClientRef string `json:"client_ref"`
}

type bcomInventoryItem struct {
	RoomCode  string `json:"room_code"`
	Date      string `json:"date"`
	RoomsLeft int    `json:"rooms_left"`
	ClientRef string `json:"client_ref"`
}

type bcomAvailabilityItem struct {
	RoomCode  string `json:"room_code"`
	Date      string `json:"date"`
	Closed    bool   `json:"closed"`
	ClientRef string `json:"client_ref"`
}

type bcomResponse struct {
	Results []struct {
		ClientRef string `json:"client_ref"`
		OK        bool   `json:"ok"`
		Message   string `json:"message"`
	} `json:"results"`
}

func (b *bookingCom) TestConnection(ctx context.Context) (domain.ConnectionStatus, error) {
	err := b.rc.get(ctx, "/hotels/"+b.hotelID, nil)
	return connStatus(err)
}

func (b *bookingCom) SyncRates(ctx context.Context, propertyID int64, items []domain.RatePayload) (domain.SyncResult, error) {
	start := time.Now()
	body := struct {
		Rates []bcomRateItem `json:"rates"`
	}{Rates: make([]bcomRateItem, 0, len(items))}
	for _, it := range items {
		body.Rates = append(body.Rates, bcomRateItem{
			RoomCode:  it.RoomCategory,
			RatePlan:  string(it.Plan),
			Guests:    occupancyGuests(it.Occupancy),
			Date:      it.Date.Format(time.DateOnly),
			Amount:    minorToDecimal(it.PriceMinor),
			Currency:  it.Currency,
			ClientRef: it.Key(),
		})
	}
	var resp bcomResponse
	if err := b.rc.post(ctx, "/hotels/"+b.hotelID+"/rates", body, &resp); err != nil {
		return failedResult(len(items), start), fmt.Errorf("booking.com rates push: %w", err)
	}
	return buildResult(len(items), resp.failures(), start), nil
}

func (b *bookingCom) SyncInventory(ctx context.Context, propertyID int64, items []domain.InventoryPayload) (domain.SyncResult, error) {
	start := time.Now()
	body := struct {
		Inventory []bcomInventoryItem `json:"inventory"`
	}{Inventory: make([]bcomInventoryItem, 0, len(items))}
	for _, it := range items {
		body.Inventory = append(body.Inventory, bcomInventoryItem{
			RoomCode:  it.RoomCategory,
			Date:      it.Date.Format(time.DateOnly),
			RoomsLeft: it.Available,
			ClientRef: it.Key(),
		})
	}
	var resp bcomResponse
	if err := b.rc.post(ctx, "/hotels/"+b.hotelID+"/inventory", body, &resp); err != nil {
		return failedResult(len(items), start), fmt.Errorf("booking.com inventory push: %w", err)
	}
	return buildResult(len(items), resp.failures(), start), nil
}

func (b *bookingCom) SyncAvailability(ctx context.Context, propertyID int64, items []domain.AvailabilityPayload) (domain.SyncResult, error) {
	start := time.Now()
	body := struct {
		Availability []bcomAvailabilityItem `json:"availability"`
	}{Availability: make([]bcomAvailabilityItem, 0, len(items))}
	for _, it := range items {
		body.Availability = append(body.Availability, bcomAvailabilityItem{
			RoomCode:  it.RoomCategory,
			Date:      it.Date.Format(time.DateOnly),
			Closed:    !it.Open,
			ClientRef: it.Key(),
		})
	}
	var resp bcomResponse
	if err := b.rc.post(ctx, "/hotels/"+b.hotelID+"/availability", body, &resp); err != nil {
		return failedResult(len(items), start), fmt.Errorf("booking.com availability push: %w", err)
	}
	return buildResult(len(items), resp.failures(), start), nil
}

func (r bcomResponse) failures() []domain.ItemFailure {
	var out []domain.ItemFailure
	for _, res := range r.Results {
		if !res.OK {
			out = append(out, domain.ItemFailure{Item: res.ClientRef, Reason: res.Message})
		}
	}
	return out
}
