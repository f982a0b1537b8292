package survey

import "encoding/json"

// Upload is the body of one ingestion request: a run and its points plus the
// transport metadata sent by field devices.
//
// Both the {run, points} envelope and the device envelope {values, data_list}
// are accepted.
type Upload struct {
	Timestamp *int64  `json:"timestamp,omitempty"`
	DeviceID  string  `json:"device_id,omitempty"`
	DataType  string  `json:"data_type,omitempty"`
	Run       *Run    `json:"run"`
	Points    []Point `json:"points"`
}

func (u *Upload) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp     *int64  `json:"timestamp"`
		DeviceID      *string `json:"device_id"`
		DeviceIDCamel *string `json:"deviceId"`
		DataType      *string `json:"data_type"`
		DataTypeCamel *string `json:"dataType"`
		Run           *Run    `json:"run"`
		Values        *Run    `json:"values"`
		Points        []Point `json:"points"`
		DataList      []Point `json:"data_list"`
		DataListCamel []Point `json:"dataList"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*u = Upload{Timestamp: raw.Timestamp}
	if s := firstString(raw.DeviceID, raw.DeviceIDCamel); s != nil {
		u.DeviceID = *s
	}
	if s := firstString(raw.DataType, raw.DataTypeCamel); s != nil {
		u.DataType = *s
	}

	u.Run = raw.Run
	if u.Run == nil {
		u.Run = raw.Values
	}

	switch {
	case raw.Points != nil:
		u.Points = raw.Points
	case raw.DataList != nil:
		u.Points = raw.DataList
	default:
		u.Points = raw.DataListCamel
	}
	return nil
}

// Decode parses and validates an upload body.
func Decode(data []byte) (Upload, error) {
	var u Upload
	if err := json.Unmarshal(data, &u); err != nil {
		return Upload{}, err
	}
	if err := u.Validate(); err != nil {
		return Upload{}, err
	}
	return u, nil
}

func (u Upload) Validate() error {
	if u.Run == nil {
		return ErrMissingRun
	}
	return u.Run.Validate()
}
