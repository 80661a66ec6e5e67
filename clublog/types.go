package clublog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DXCCStatus is the per-band confirmation state reported in the DXCC matrix.
type DXCCStatus int

const (
	// StatusConfirmed means a QSL confirmation was received.
	StatusConfirmed DXCCStatus = 1

	// StatusWorked means the entity was worked but not confirmed.
	StatusWorked DXCCStatus = 2

	// StatusVerified means the QSO was confirmed through Logbook of The World.
	StatusVerified DXCCStatus = 3
)

// UnmarshalJSON accepts both numbers and numeric strings.
func (s *DXCCStatus) UnmarshalJSON(b []byte) error {
	n, err := decodeInt(b)
	if err != nil {
		return fmt.Errorf("dxcc status: %w", err)
	}
	*s = DXCCStatus(n)
	return nil
}

// DXCCMatrix maps a DXCC entity ID to its bands and the status on each band.
//
//	{"291": {"20": 1, "40": 3}, "1": {"20": 2}}
type DXCCMatrix map[string]map[string]DXCCStatus

// UnmarshalJSON treats an empty JSON array as an empty matrix, which is how
// the API encodes a log with no DXCC entries.
func (m *DXCCMatrix) UnmarshalJSON(b []byte) error {
	if isEmptyArray(b) {
		*m = DXCCMatrix{}
		return nil
	}
	var raw map[string]map[string]DXCCStatus
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// Flag decodes JSON booleans as well as the 0/1 numbers and "yes"/"no"
// strings the API uses interchangeably.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = false
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "y", "on":
			*f = true
		default:
			*f = false
		}
		return nil
	case bytes.Equal(b, []byte("true")):
		*f = true
		return nil
	case bytes.Equal(b, []byte("false")):
		*f = false
		return nil
	}
	n, err := decodeInt(b)
	if err != nil {
		return fmt.Errorf("flag: %w", err)
	}
	*f = n != 0
	return nil
}

// Count decodes JSON numbers and numeric strings.
type Count int64

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*c = 0
		return nil
	}
	n, err := decodeInt(b)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	*c = Count(n)
	return nil
}

// Watch is the log summary returned by watch.php for a callsign.
type Watch struct {
	ClubLogUser  Flag      `json:"clublog_user"`
	IsExpedition Flag      `json:"is_expedition"`
	HasOQRS      Flag      `json:"has_oqrs"`
	Info         WatchInfo `json:"clublog_info"`
}

// WatchInfo holds the log statistics nested in a [Watch] response.
type WatchInfo struct {
	TotalQSOs         Count  `json:"total_qsos"`
	LastClubLogUpload string `json:"last_clublog_upload"`
	LastUpload        string `json:"last_upload"`
	FirstQSO          string `json:"first_qso"`
	LastQSO           string `json:"last_qso"`
}

// LastUploadTime returns the most specific upload timestamp the response
// carried, or "" when neither field was present.
func (i WatchInfo) LastUploadTime() string {
	if i.LastClubLogUpload != "" {
		return i.LastClubLogUpload
	}
	return i.LastUpload
}

// WantedEntity is one row of the most wanted ranking.
type WantedEntity struct {
	Rank int    `json:"rank"`
	DXCC string `json:"dxcc"`
}

// MostWanted is the most wanted ranking ordered by ascending rank.
type MostWanted []WantedEntity

// UnmarshalJSON decodes either the {"rank": "dxcc"} object the API returns
// or a plain list where the position is the rank. JSON objects carry no
// order, so entries are sorted by rank after decoding.
func (m *MostWanted) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		out := make(MostWanted, 0, len(list))
		for i, raw := range list {
			dxcc, err := decodeString(raw)
			if err != nil {
				return fmt.Errorf("most wanted[%d]: %w", i, err)
			}
			out = append(out, WantedEntity{Rank: i + 1, DXCC: dxcc})
		}
		*m = out
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(MostWanted, 0, len(raw))
	for key, val := range raw {
		rank, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return fmt.Errorf("most wanted: rank %q is not a number", key)
		}
		dxcc, err := decodeString(val)
		if err != nil {
			return fmt.Errorf("most wanted[%s]: %w", key, err)
		}
		out = append(out, WantedEntity{Rank: rank, DXCC: dxcc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	*m = out
	return nil
}

// Expedition is an active DXpedition as listed by expeditions.php.
// The API encodes each row as a positional array: [call, date, qso_count].
type Expedition struct {
	Call     string `json:"call"`
	Date     string `json:"date"`
	QSOCount int64  `json:"qso_count"`
}

// UnmarshalJSON implements json.Unmarshaler for the positional row format.
func (e *Expedition) UnmarshalJSON(b []byte) error {
	fields, err := decodeRow(b, 3)
	if err != nil {
		return fmt.Errorf("expedition: %w", err)
	}
	if e.Call, err = decodeString(fields[0]); err != nil {
		return fmt.Errorf("expedition call: %w", err)
	}
	if e.Date, err = decodeString(fields[1]); err != nil {
		return fmt.Errorf("expedition date: %w", err)
	}
	if fields[2] != nil {
		if e.QSOCount, err = decodeInt(fields[2]); err != nil {
			return fmt.Errorf("expedition qso count: %w", err)
		}
	}
	return nil
}

// Livestream is an active livestream as listed by livestreams.php.
// Rows are positional arrays: [call, dxcc, date, url].
type Livestream struct {
	Call string `json:"call"`
	DXCC string `json:"dxcc"`
	Date string `json:"date"`
	URL  string `json:"url"`
}

// UnmarshalJSON implements json.Unmarshaler for the positional row format.
func (l *Livestream) UnmarshalJSON(b []byte) error {
	fields, err := decodeRow(b, 4)
	if err != nil {
		return fmt.Errorf("livestream: %w", err)
	}
	dst := []*string{&l.Call, &l.DXCC, &l.Date, &l.URL}
	for i, p := range dst {
		if *p, err = decodeString(fields[i]); err != nil {
			return fmt.Errorf("livestream field %d: %w", i, err)
		}
	}
	return nil
}

// HourlyCounts is the QSO count per hour of day for one band. Older API
// responses carry a single number instead of the 24 hourly buckets.
type HourlyCounts []int64

// UnmarshalJSON implements json.Unmarshaler.
func (h *HourlyCounts) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make(HourlyCounts, 0, len(raw))
		for i, r := range raw {
			n, err := decodeInt(r)
			if err != nil {
				return fmt.Errorf("hour %d: %w", i, err)
			}
			out = append(out, n)
		}
		*h = out
		return nil
	}
	n, err := decodeInt(b)
	if err != nil {
		return err
	}
	*h = HourlyCounts{n}
	return nil
}

// Total returns the sum of all buckets.
func (h HourlyCounts) Total() int64 {
	var sum int64
	for _, n := range h {
		sum += n
	}
	return sum
}

// Activity maps a band name to its hourly QSO counts.
type Activity map[string]HourlyCounts

// UnmarshalJSON treats an empty JSON array as no activity.
func (a *Activity) UnmarshalJSON(b []byte) error {
	if isEmptyArray(b) {
		*a = Activity{}
		return nil
	}
	var raw map[string]HourlyCounts
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = raw
	return nil
}

// Bands returns the band names in sorted order.
func (a Activity) Bands() []string {
	bands := make([]string, 0, len(a))
	for band := range a {
		bands = append(bands, band)
	}
	sort.Strings(bands)
	return bands
}

func isEmptyArray(b []byte) bool {
	b = bytes.TrimSpace(b)
	if len(b) < 2 || b[0] != '[' || b[len(b)-1] != ']' {
		return false
	}
	return len(bytes.TrimSpace(b[1:len(b)-1])) == 0
}

// decodeRow decodes a positional JSON array, padding missing trailing fields
// with nil so short rows still decode.
func decodeRow(b []byte, width int) ([]json.RawMessage, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty row")
	}
	for len(fields) < width {
		fields = append(fields, nil)
	}
	return fields, nil
}

// decodeString accepts JSON strings and numbers; null and missing decode to "".
func decodeString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	return n.String(), nil
}

// decodeInt accepts JSON numbers and numeric strings. Fractional values are
// truncated.
func decodeInt(raw []byte) (int64, error) {
	s, err := decodeString(raw)
	if err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return int64(f), nil
}
