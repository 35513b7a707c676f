package cloud

// Provider payloads are loosely typed: numeric fields arrive as strings,
// numbers, or not at all, so they are declared as `any` here and coerced by
// the jobs through the parse package.

// SummaryItem is one record from the bulk end-user summary endpoint.
type SummaryItem struct {
	MemberID         string `json:"MemberID"`
	Sign             string `json:"Sign"`
	MemberStateCount any    `json:"MemberStateCount"`
	CurrentPac       any    `json:"CurrentPac"`
	EToday           any    `json:"EToday"`
	ETotal           any    `json:"ETotal"`
	Kwp              any    `json:"Kwp"`
	CreateTime       string `json:"CreateTime"`
}

// DeviceDetail is the per-device lookup response.
type DeviceDetail struct {
	GoodsID  string `json:"GoodsID"`
	AutoID   string `json:"AutoID"`
	Light    any    `json:"Light"` // numeric status code 1..4
	CurrPac  any    `json:"CurrPac"`
	EToday   any    `json:"EToday"`
	ETotal   any    `json:"ETotal"`
	Htotal   any    `json:"Htotal"`
	DataTime string `json:"DataTime"`
}

// AlarmError is one active fault reported for a device.
type AlarmError struct {
	Code           string `json:"ErrorCode"`
	Message        string `json:"ErrorMsg"`
	ElapsedSeconds any    `json:"ElapsedTime"`
}

// AlarmReport is the per-device alarm lookup response.
type AlarmReport struct {
	ErrorCount int          `json:"ErrorCount"`
	Errors     []AlarmError `json:"ErrorList"`
}
