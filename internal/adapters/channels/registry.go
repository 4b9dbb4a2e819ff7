package channels

import (
	"fmt"

	"staysync/internal/domain"
)

// requiredCredentials names the fields each channel must carry. Checked at
// construction, before any network call.
var requiredCredentials = map[domain.ChannelName][]string{
	domain.ChannelBookingCom: {"api_key", "hotel_id"},
	domain.ChannelExpedia:    {"username", "password", "hotel_id"},
	domain.ChannelAgoda:      {"api_key", "property_code"},
}

// Factory builds channel adapters. Every Create call returns a fresh
// instance with its own HTTP client and rate limiter, so concurrent sync
// runs never share adapter state.
type Factory struct {
	endpoints map[domain.ChannelName]string
	rps       int
}

func NewFactory(endpoints map[domain.ChannelName]string, rps int) *Factory {
	return &Factory{endpoints: endpoints, rps: rps}
}

func (f *Factory) Create(name domain.ChannelName, creds domain.Credentials) (domain.ChannelAdapter, error) {
	if _, err := domain.ParseChannelName(string(name)); err != nil {
		return nil, err
	}
	for _, field := range requiredCredentials[name] {
		if creds[field] == "" {
			return nil, fmt.Errorf("%w: %s requires %q", domain.ErrMissingCredentials, name, field)
		}
	}
	base := f.endpoints[name]
	switch name {
	case domain.ChannelBookingCom:
		return newBookingCom(base, creds, f.rps), nil
	case domain.ChannelExpedia:
		return newExpedia(base, creds, f.rps), nil
	case domain.ChannelAgoda:
		return newAgoda(base, creds, f.rps), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedChannel, name)
}
