package pagination

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 20
	MaxSize     = 100

	// MaxOffset bounds Page*Size so the offset never overflows.
	MaxOffset = math.MaxInt32
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is a single ordering term, expressed in wire (JSON) field names.
type Sort struct {
	Field     string
	Direction Direction
}

// Params holds pagination parameters extracted from a request.
// Page is 0-based.
type Params struct {
	Page int
	Size int
	Sort []Sort
}

// FromContext extracts page, size and sort from the echo context.
// Out-of-range values are clamped rather than rejected.
func FromContext(c echo.Context) Params {
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 0 {
		page = 0
	}
	if page > MaxOffset/size {
		page = MaxOffset / size
	}

	return Params{Page: page, Size: size, Sort: ParseSort(c.QueryParams()["sort"])}
}

// ParseSort parses values of the form "field" or "field,dir". Multiple terms
// may be given as repeated parameters or separated by ';'.
func ParseSort(values []string) []Sort {
	var out []Sort
	for _, v := range values {
		for _, term := range strings.Split(v, ";") {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			parts := strings.SplitN(term, ",", 2)
			s := Sort{Field: strings.TrimSpace(parts[0]), Direction: Asc}
			if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[1]), string(Desc)) {
				s.Direction = Desc
			}
			if s.Field != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Limit returns the SQL LIMIT for the page.
func (p Params) Limit() int {
	return p.Size
}

// Offset returns the SQL OFFSET for the page, capped at MaxOffset.
func (p Params) Offset() int {
	if p.Size > 0 && p.Page > MaxOffset/p.Size {
		return MaxOffset
	}
	return p.Page * p.Size
}

// OrderBy renders the sort terms as an ORDER BY list using columns, which maps
// wire field names to SQL columns. Unknown fields are an error so that user
// input never reaches the query text. fallback is used when no sort is set.
func (p Params) OrderBy(columns map[string]string, fallback string) (string, error) {
	if len(p.Sort) == 0 {
		return fallback, nil
	}
	terms := make([]string, 0, len(p.Sort))
	for _, s := range p.Sort {
		col, ok := columns[s.Field]
		if !ok {
			return "", fmt.Errorf("unsupported sort field %q", s.Field)
		}
		terms = append(terms, col+" "+strings.ToUpper(string(s.Direction)))
	}
	return strings.Join(terms, ", "), nil
}

// Page wraps a paginated API response.
type Page[T any] struct {
	Content       []T  `json:"content"`
	Page          int  `json:"page"`
	Size          int  `json:"size"`
	TotalElements int  `json:"totalElements"`
	TotalPages    int  `json:"totalPages"`
	First         bool `json:"first"`
	Last          bool `json:"last"`
}

func NewPage[T any](content []T, total int, p Params) *Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if p.Size > 0 {
		pages = (total + p.Size - 1) / p.Size
	}
	return &Page[T]{
		Content:       content,
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: total,
		TotalPages:    pages,
		First:         !p.HasPrevious(),
		Last:          !p.HasNext(total),
	}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Size < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Page > 0
}
