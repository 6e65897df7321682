package panel

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/google/uuid"
)

// Raw 3x-ui wire shapes. Field sets differ between panel versions, so every
// traffic counter has alternates; resolution order lives in BuildClientIndex.

// Inbound is one inbound listener with its clients and traffic stats.
// Newer panels inline Clients; older ones embed them in the Settings JSON
// string. ClientStats may be absent entirely.
type Inbound struct {
	ID          int64        `json:"id"`
	Clients     []RawClient  `json:"clients"`
	Settings    string       `json:"settings"`
	ClientStats []ClientStat `json:"clientStats"`
}

// RawClient is a client object as embedded in an inbound.
type RawClient struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	TotalGB    int64  `json:"totalGB"` // bytes despite the name
	Total      int64  `json:"total"`   // alternate field name
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	Upload     int64  `json:"upload"`   // alternate field pair
	Download   int64  `json:"download"` //
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	LastOnline int64  `json:"lastOnline"`
}

// ClientStat is a per-client traffic record. The id field is numeric on some
// panel versions and a UUID string on others.
type ClientStat struct {
	ID         flexID `json:"id"`
	UUID       flexID `json:"uuid"`
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	LastOnline int64  `json:"lastOnline"`
}

// flexID decodes a JSON string or number into a string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type inboundSettings struct {
	Clients []RawClient `json:"clients"`
}

// inboundClients returns the client list of an inbound, preferring the inline
// list and falling back to the Settings JSON blob. A garbled blob yields nil.
func inboundClients(in Inbound) []RawClient {
	if len(in.Clients) > 0 {
		return in.Clients
	}
	if in.Settings == "" {
		return nil
	}
	var settings inboundSettings
	if err := json.Unmarshal([]byte(in.Settings), &settings); err != nil {
		log.Printf("[panel] inbound %d: unparseable settings blob: %v", in.ID, err)
		return nil
	}
	return settings.Clients
}

// emailUUID extracts a client UUID from a stat email of the form
// "<uuid>@whatever". Returns "" when the local part is not a UUID.
func emailUUID(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	local := email[:at]
	if _, err := uuid.Parse(local); err != nil {
		return ""
	}
	return local
}

// matchStat finds the traffic stat for a client UUID. Three strategies in
// order, first match wins: stat id, stat uuid, UUID derived from stat email.
func matchStat(stats []ClientStat, clientUUID string) (ClientStat, bool) {
	for _, st := range stats {
		if string(st.ID) == clientUUID ||
			string(st.UUID) == clientUUID ||
			emailUUID(st.Email) == clientUUID {
			return st, true
		}
	}
	return ClientStat{}, false
}

// BuildClientIndex flattens a raw inbound dump into a usage index keyed by
// client UUID. Traffic counters resolve in priority order: matched stat
// record, counters embedded on the client object, zero.
func BuildClientIndex(inbounds []Inbound) map[string]ClientUsage {
	index := make(map[string]ClientUsage)

	for _, in := range inbounds {
		if in.ID == 0 {
			continue
		}
		for _, c := range inboundClients(in) {
			if c.ID == "" {
				continue
			}

			usage := ClientUsage{
				ClientUUID: c.ID,
				InboundID:  in.ID,
				ExpiryMs:   c.ExpiryTime,
				Enabled:    c.Enable,
				Email:      c.Email,
			}

			if st, ok := matchStat(in.ClientStats, c.ID); ok {
				usage.UsedBytes = st.Up + st.Down
				usage.LastActivityMs = st.LastOnline
			}
			if usage.UsedBytes == 0 {
				switch {
				case c.Up != 0 || c.Down != 0:
					usage.UsedBytes = c.Up + c.Down
				case c.Upload != 0 || c.Download != 0:
					usage.UsedBytes = c.Upload + c.Download
				}
			}
			if usage.LastActivityMs == 0 {
				usage.LastActivityMs = c.LastOnline
			}

			usage.TotalBytes = c.TotalGB
			if usage.TotalBytes == 0 {
				usage.TotalBytes = c.Total
			}

			index[c.ID] = usage
		}
	}

	return index
}
