package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the fixed date-time format used by the collection feed.
const DateLayout = "2006-01-02T15:04:05"

// WasteStream names one of the tracked collection categories.
type WasteStream string

const (
	Domestic  WasteStream = "domestic"
	Recycling WasteStream = "recycling"
	Garden    WasteStream = "garden"
)

// WasteStreams lists every stream in display order.
var WasteStreams = []WasteStream{Domestic, Recycling, Garden}

// Property is a candidate address returned by the postcode lookup feed.
type Property struct {
	UPRN         UPRN   `json:"uprn"`
	AddressComma string `json:"addressComma"`
}

// UPRN is a Unique Property Reference Number. The gazetteer feed has been
// seen to emit it both as a JSON string and as a bare number.
type UPRN string

func (u *UPRN) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UPRN(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("uprn: %w", err)
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return fmt.Errorf("uprn: not an integer: %s", n)
	}
	*u = UPRN(n.String())
	return nil
}

// CollectionResult holds the next collection date of every stream. It is
// either complete or not produced at all.
type CollectionResult struct {
	Domestic  time.Time
	Recycling time.Time
	Garden    time.Time
}

// Date returns the next collection date for the given stream.
func (r CollectionResult) Date(stream WasteStream) time.Time {
	switch stream {
	case Domestic:
		return r.Domestic
	case Recycling:
		return r.Recycling
	case Garden:
		return r.Garden
	}
	return time.Time{}
}
