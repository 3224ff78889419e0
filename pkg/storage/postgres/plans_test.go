package postgres_test

import (
	"context"
	"errors"
	"testing"

	"chartgate/pkg/storage/postgres"

	"github.com/shopspring/decimal"
)

// go test -v --run ^TestPlans$
func TestPlans(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	basic := &postgres.PlanRecord{Name: "basic", Description: "top 12", MonthlyPrice: decimal.NewFromInt(10000), YearlyPrice: decimal.NewFromInt(100000)}
	pro := &postgres.PlanRecord{Name: "pro", Description: "all collections", MonthlyPrice: decimal.NewFromInt(50000), YearlyPrice: decimal.NewFromInt(500000)}
	for _, p := range []*postgres.PlanRecord{basic, pro} {
		if err := client.CreatePlan(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.Name, err)
		}
	}

	if err := client.CreatePlan(ctx, &postgres.PlanRecord{Name: "pro", Description: "dup"}); err == nil {
		t.Error("expected unique name violation")
	}

	plans, err := client.ListPlans(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(plans) != 2 || plans[0].Name != "basic" {
		t.Fatalf("unexpected plans: %+v", plans)
	}
	if !plans[1].Price(postgres.CadenceYearly).Equal(decimal.NewFromInt(500000)) {
		t.Errorf("yearly price: %s", plans[1].Price(postgres.CadenceYearly))
	}

	updated, err := client.UpdatePlan(ctx, pro.ID, map[string]any{"monthly_price": decimal.NewFromInt(45000)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.MonthlyPrice.Equal(decimal.NewFromInt(45000)) || updated.Name != "pro" {
		t.Errorf("unexpected update result: %+v", updated)
	}

	if _, err := client.UpdatePlan(ctx, 999, map[string]any{"name": "ghost"}); !errors.Is(err, postgres.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := client.DeletePlan(ctx, basic.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := client.DeletePlan(ctx, basic.ID); !errors.Is(err, postgres.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
