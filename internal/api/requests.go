package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"chartgate/pkg/storage/postgres"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// ValidationError lists every problem found in a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation error: " + strings.Join(e.Problems, "; ")
}

type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Problems: p}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &ValidationError{Problems: []string{"request body is empty"}}
		}
		return &ValidationError{Problems: []string{"malformed JSON: " + err.Error()}}
	}
	return nil
}

type submitTransactionRequest struct {
	TxHash       string           `json:"txHash"`
	PlanID       uint             `json:"planId"`
	PurchaseType postgres.Cadence `json:"purchaseType"`
}

func (req *submitTransactionRequest) validate() error {
	var p problems
	req.TxHash = strings.TrimSpace(req.TxHash)
	if req.TxHash == "" {
		p.add("txHash is required")
	}
	if req.PlanID == 0 {
		p.add("planId is required")
	}
	if !req.PurchaseType.Valid() {
		p.add("purchaseType must be one of [monthly, yearly]")
	}
	return p.err()
}

type createPlanRequest struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	MonthlyPrice *decimal.Decimal `json:"monthlyPrice"`
	YearlyPrice  *decimal.Decimal `json:"yearlyPrice"`
}

func (req *createPlanRequest) validate() error {
	var p problems
	if strings.TrimSpace(req.Name) == "" {
		p.add("name is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		p.add("description is required")
	}
	checkPrice(&p, "monthlyPrice", req.MonthlyPrice, true)
	checkPrice(&p, "yearlyPrice", req.YearlyPrice, true)
	return p.err()
}

func (req *createPlanRequest) record() *postgres.PlanRecord {
	return &postgres.PlanRecord{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		MonthlyPrice: *req.MonthlyPrice,
		YearlyPrice:  *req.YearlyPrice,
	}
}

// updatePlanRequest only changes the fields that are present.
type updatePlanRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	MonthlyPrice *decimal.Decimal `json:"monthlyPrice"`
	YearlyPrice  *decimal.Decimal `json:"yearlyPrice"`
}

func (req *updatePlanRequest) validate() error {
	var p problems
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		p.add("name must not be empty")
	}
	if req.Description != nil && strings.TrimSpace(*req.Description) == "" {
		p.add("description must not be empty")
	}
	checkPrice(&p, "monthlyPrice", req.MonthlyPrice, false)
	checkPrice(&p, "yearlyPrice", req.YearlyPrice, false)
	return p.err()
}

func (req *updatePlanRequest) changes() map[string]any {
	out := map[string]any{}
	if req.Name != nil {
		out["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		out["description"] = *req.Description
	}
	if req.MonthlyPrice != nil {
		out["monthly_price"] = *req.MonthlyPrice
	}
	if req.YearlyPrice != nil {
		out["yearly_price"] = *req.YearlyPrice
	}
	return out
}

func checkPrice(p *problems, field string, v *decimal.Decimal, required bool) {
	switch {
	case v == nil && required:
		p.add("%s is required", field)
	case v != nil && v.IsNegative():
		p.add("%s must be greater than or equal to 0", field)
	}
}

// windowQuery reads the ranking window and limit of the collection endpoints.
type windowQuery struct {
	Window string
	Limit  int
}

var rankingWindows = map[string]bool{"1h": true, "6h": true, "1d": true, "7d": true, "30d": true}

func parseWindowQuery(r *http.Request, defaultLimit int) (windowQuery, error) {
	q := windowQuery{Window: "1d", Limit: defaultLimit}
	var p problems

	if w := r.URL.Query().Get("window"); w != "" {
		if !rankingWindows[w] {
			p.add("window must be one of [1h, 6h, 1d, 7d, 30d]")
		}
		q.Window = w
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			p.add("limit must be a positive integer")
		}
		q.Limit = n
	}
	return q, p.err()
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &ValidationError{Problems: []string{"id must be a positive integer"}}
	}
	return uint(id), nil
}
