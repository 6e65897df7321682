package panel

import (
	"testing"
)

const (
	uuidA = "0f8fad5b-d9cb-469f-a165-70867728950e"
	uuidB = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	uuidC = "3d813cbb-47fb-32ba-91df-831e1593ac29"
)

func TestBuildClientIndex_StatMatchByID(t *testing.T) {
	inbounds := []Inbound{{
		ID:      5,
		Clients: []RawClient{{ID: uuidA, Email: "alice", TotalGB: 10 << 30, Enable: true}},
		ClientStats: []ClientStat{
			{ID: flexID(uuidA), Up: 1 << 30, Down: 2 << 30, LastOnline: 1700000000000},
		},
	}}

	index := BuildClientIndex(inbounds)
	usage, ok := index[uuidA]
	if !ok {
		t.Fatalf("client %s missing from index", uuidA)
	}
	if usage.UsedBytes != 3<<30 {
		t.Fatalf("expected used %d, got %d", int64(3<<30), usage.UsedBytes)
	}
	if usage.TotalBytes != 10<<30 {
		t.Fatalf("expected total %d, got %d", int64(10<<30), usage.TotalBytes)
	}
	if usage.InboundID != 5 || !usage.Enabled {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if usage.LastActivityMs != 1700000000000 {
		t.Fatalf("expected last activity from stat, got %d", usage.LastActivityMs)
	}
}

func TestBuildClientIndex_StatMatchByUUIDField(t *testing.T) {
	inbounds := []Inbound{{
		ID:      1,
		Clients: []RawClient{{ID: uuidB, TotalGB: 1 << 30}},
		ClientStats: []ClientStat{
			{ID: "42", UUID: flexID(uuidB), Up: 100, Down: 200},
		},
	}}

	usage := BuildClientIndex(inbounds)[uuidB]
	if usage.UsedBytes != 300 {
		t.Fatalf("uuid-field match failed: %+v", usage)
	}
}

func TestBuildClientIndex_StatMatchByEmailUUID(t *testing.T) {
	inbounds := []Inbound{{
		ID:      1,
		Clients: []RawClient{{ID: uuidC, TotalGB: 1 << 30}},
		ClientStats: []ClientStat{
			{ID: "7", Email: uuidC + "@node-1", Up: 55, Down: 45},
			{ID: "8", Email: "not-a-uuid@node-1", Up: 999, Down: 999},
		},
	}}

	usage := BuildClientIndex(inbounds)[uuidC]
	if usage.UsedBytes != 100 {
		t.Fatalf("email-uuid match failed: %+v", usage)
	}
}

func TestBuildClientIndex_NumericStatID(t *testing.T) {
	// Some panel versions send clientStats ids as JSON numbers.
	var st ClientStat
	if err := st.ID.UnmarshalJSON([]byte(`1234`)); err != nil {
		t.Fatal(err)
	}
	if st.ID != "1234" {
		t.Fatalf("expected \"1234\", got %q", st.ID)
	}
	if err := st.UUID.UnmarshalJSON([]byte(`"` + uuidA + `"`)); err != nil {
		t.Fatal(err)
	}
	if string(st.UUID) != uuidA {
		t.Fatalf("expected %q, got %q", uuidA, st.UUID)
	}
}

func TestBuildClientIndex_SettingsBlobFallback(t *testing.T) {
	inbounds := []Inbound{{
		ID:       2,
		Settings: `{"clients":[{"id":"` + uuidA + `","email":"bob","totalGB":5368709120,"up":10,"down":20,"enable":false}]}`,
	}}

	usage, ok := BuildClientIndex(inbounds)[uuidA]
	if !ok {
		t.Fatal("client from settings blob missing")
	}
	if usage.UsedBytes != 30 || usage.TotalBytes != 5368709120 || usage.Enabled {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestBuildClientIndex_GarbledSettingsSkipped(t *testing.T) {
	inbounds := []Inbound{
		{ID: 1, Settings: `{"clients": [broken`},
		{ID: 2, Clients: []RawClient{{ID: uuidB, TotalGB: 1}}},
	}

	index := BuildClientIndex(inbounds)
	if len(index) != 1 {
		t.Fatalf("expected 1 client, got %d", len(index))
	}
	if _, ok := index[uuidB]; !ok {
		t.Fatal("healthy inbound lost alongside garbled one")
	}
}

func TestBuildClientIndex_CounterFallbacks(t *testing.T) {
	inbounds := []Inbound{{
		ID: 3,
		Clients: []RawClient{
			// No stat, up/down on the client object.
			{ID: uuidA, Up: 7, Down: 3, Total: 100},
			// No stat, alternate upload/download pair.
			{ID: uuidB, Upload: 11, Download: 9, TotalGB: 200},
			// Nothing anywhere: zero.
			{ID: uuidC},
		},
	}}

	index := BuildClientIndex(inbounds)
	if got := index[uuidA]; got.UsedBytes != 10 || got.TotalBytes != 100 {
		t.Fatalf("up/down fallback: %+v", got)
	}
	if got := index[uuidB]; got.UsedBytes != 20 || got.TotalBytes != 200 {
		t.Fatalf("upload/download fallback: %+v", got)
	}
	if got := index[uuidC]; got.UsedBytes != 0 || got.TotalBytes != 0 {
		t.Fatalf("zero fallback: %+v", got)
	}
}

func TestBuildClientIndex_SkipsAnonymousEntries(t *testing.T) {
	inbounds := []Inbound{
		{ID: 0, Clients: []RawClient{{ID: uuidA}}}, // inbound without id
		{ID: 1, Clients: []RawClient{{ID: ""}}},    // client without uuid
	}
	if n := len(BuildClientIndex(inbounds)); n != 0 {
		t.Fatalf("expected empty index, got %d entries", n)
	}
}

func TestEmailUUID(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{uuidA + "@panel", uuidA},
		{"plain-name@panel", ""},
		{"no-at-sign", ""},
		{"@panel", ""},
	}
	for _, tc := range cases {
		if got := emailUUID(tc.email); got != tc.want {
			t.Errorf("emailUUID(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}
