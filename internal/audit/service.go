package audit

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxExportRows   = 10000
)

// Repository reads stored entries.
type Repository interface {
	Timeline(ctx context.Context, params TimelineParams) ([]Entry, error)
}

// Service serves the admin audit timeline.
type Service struct {
	repo Repository
}

// NewService returns a timeline service on repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	params := toParams(filters)
	params.Offset = (page - 1) * pageSize
	params.Limit = pageSize + 1

	entries, err := s.repo.Timeline(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Result{Entries: entries, Paging: paging}, nil
}

// Export returns every matching entry up to a fixed cap.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	params := toParams(filters)
	params.Limit = maxExportRows
	return s.repo.Timeline(ctx, params)
}

func toParams(filters TimelineFilters) TimelineParams {
	return TimelineParams{
		From:   filters.From,
		To:     filters.To,
		UserID: strings.TrimSpace(filters.UserID),
		Action: strings.ToUpper(strings.TrimSpace(filters.Action)),
		IP:     strings.TrimSpace(filters.IP),
	}
}
