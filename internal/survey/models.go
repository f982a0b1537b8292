// Package survey holds the borehole survey data model shared by the ingestion
// pipeline and the storage backends.
package survey

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingRun   = errors.New("payload has no run")
	ErrMissingDepth = errors.New("point has no depth")
	ErrInvalidRun   = errors.New("run is invalid")
)

// Run is one survey session (a "repo" on the device side).
type Run struct {
	ID       *int64 `json:"id,omitempty"`
	Name     string `json:"name"`
	MnTime   string `json:"mn_time"`
	Len      int64  `json:"len"`
	Mine     string `json:"mine"`
	Work     string `json:"work"`
	Factory  string `json:"factory"`
	Drilling string `json:"drilling"`
}

// Point is a single measurement taken at a depth along the borehole.
type Point struct {
	ID            *int64   `json:"id,omitempty"`
	Time          *string  `json:"time,omitempty"`
	Depth         float64  `json:"depth"`
	Pitch         *float64 `json:"pitch,omitempty"`
	Roll          *float64 `json:"roll,omitempty"`
	Heading       *float64 `json:"heading,omitempty"`
	RunID         *int64   `json:"repo_id,omitempty"`
	DesignPitch   *float64 `json:"design_pitch,omitempty"`
	DesignHeading *float64 `json:"design_heading,omitempty"`
}

func (r *Run) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          *int64  `json:"id"`
		Name        string  `json:"name"`
		MnTime      *string `json:"mn_time"`
		MnTimeCamel *string `json:"mnTime"`
		Len         int64   `json:"len"`
		Mine        string  `json:"mine"`
		Work        string  `json:"work"`
		Factory     string  `json:"factory"`
		Drilling    string  `json:"drilling"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Run{
		ID:       raw.ID,
		Name:     raw.Name,
		Len:      raw.Len,
		Mine:     raw.Mine,
		Work:     raw.Work,
		Factory:  raw.Factory,
		Drilling: raw.Drilling,
	}
	if s := firstString(raw.MnTime, raw.MnTimeCamel); s != nil {
		r.MnTime = *s
	}
	return nil
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                 *int64   `json:"id"`
		Time               *string  `json:"time"`
		Depth              *float64 `json:"depth"`
		Pitch              *float64 `json:"pitch"`
		Roll               *float64 `json:"roll"`
		Heading            *float64 `json:"heading"`
		RunID              *int64   `json:"repo_id"`
		RunIDCamel         *int64   `json:"repoId"`
		DesignPitch        *float64 `json:"design_pitch"`
		DesignPitchCamel   *float64 `json:"designPitch"`
		DesignHeading      *float64 `json:"design_heading"`
		DesignHeadingCamel *float64 `json:"designHeading"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Depth == nil {
		return ErrMissingDepth
	}

	*p = Point{
		ID:            raw.ID,
		Time:          raw.Time,
		Depth:         *raw.Depth,
		Pitch:         raw.Pitch,
		Roll:          raw.Roll,
		Heading:       raw.Heading,
		RunID:         firstInt(raw.RunID, raw.RunIDCamel),
		DesignPitch:   firstFloat(raw.DesignPitch, raw.DesignPitchCamel),
		DesignHeading: firstFloat(raw.DesignHeading, raw.DesignHeadingCamel),
	}
	return nil
}

// Validate checks the fields a run must carry before it is stored.
func (r Run) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidRun)
	}
	return nil
}

func firstString(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstInt(vals ...*int64) *int64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
