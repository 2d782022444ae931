package repos

import (
	"fmt"
	"reflect"
	"regexp"

	"gorm.io/gorm"
)

// MaxRecordTransferCount caps how many records a single list call returns.
const MaxRecordTransferCount = 10000

// Page is the pagination/sort request every list endpoint accepts.
type Page struct {
	Offset      int
	Limit       int
	SortBy      string
	ReverseSort bool
}

// Envelope is the uniform list-response wrapper.
type Envelope struct {
	Items      interface{} `json:"items"`
	Offset     int         `json:"offset"`
	MaxLimit   int         `json:"max_limit"`
	Count      int         `json:"count"`
	TotalCount int64       `json:"total_count"`
	HasMore    bool        `json:"has_more"`
}

var sortColumnRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func (p Page) normalized() (Page, error) {
	out := p
	if out.Offset < 0 {
		out.Offset = 0
	}
	if out.Limit <= 0 || out.Limit > MaxRecordTransferCount {
		out.Limit = MaxRecordTransferCount
	}
	if out.SortBy == "" {
		out.SortBy = "id"
	}
	if !sortColumnRe.MatchString(out.SortBy) {
		return out, fmt.Errorf("invalid sort column %q", p.SortBy)
	}
	return out, nil
}

// Paginate runs a filtered query twice, once for the total count and once
// for the page, and wraps the results. dest must be a pointer to a slice.
func Paginate(q *gorm.DB, page Page, dest interface{}) (*Envelope, error) {
	p, err := page.normalized()
	if err != nil {
		return nil, err
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	dir := "ASC"
	if p.ReverseSort {
		dir = "DESC"
	}
	if err := q.Session(&gorm.Session{}).
		Order(fmt.Sprintf("%s %s", p.SortBy, dir)).
		Limit(p.Limit).
		Offset(p.Offset).
		Find(dest).Error; err != nil {
		return nil, err
	}
	count := reflect.ValueOf(dest).Elem().Len()
	return &Envelope{
		Items:      dest,
		Offset:     p.Offset,
		MaxLimit:   p.Limit,
		Count:      count,
		TotalCount: total,
		HasMore:    int64(p.Offset+count) < total,
	}, nil
}
