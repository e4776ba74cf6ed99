package audit

import "time"

// TimelineFilters narrows the admin audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	UserID   string
	Action   string
	IP       string
	Page     int
	PageSize int
}

// TimelineParams is the repository query derived from filters.
type TimelineParams struct {
	From   time.Time
	To     time.Time
	UserID string
	Action string
	IP     string
	Limit  int
	Offset int
}

// PagingInfo is simple forward/backward paging metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result is one page of the timeline.
type Result struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}
