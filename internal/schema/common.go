package schema

import "time"

// Pagination is the shared list-endpoint query schema.
type Pagination struct {
	Page  int    `json:"page" mapstructure:"page" validate:"omitempty,min=1"`
	Limit int    `json:"limit" mapstructure:"limit" validate:"omitempty,min=1,max=100"`
	Sort  string `json:"sort" mapstructure:"sort"`
	Order string `json:"order" mapstructure:"order" validate:"omitempty,oneof=asc desc"`
}

func (p *Pagination) Defaults() {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = 20
	}
	if p.Order == "" {
		p.Order = "desc"
	}
}

// ID is the shared path-parameter schema for UUID resource identifiers.
type ID struct {
	ID string `json:"id" mapstructure:"id" validate:"required,uuid4"`
}

// DateRange is the shared query schema for optional time bounds.
type DateRange struct {
	From *time.Time `json:"from" mapstructure:"from"`
	To   *time.Time `json:"to" mapstructure:"to"`
}
