package postgres

import (
	"context"
	"fmt"
)

func (p *PostgresClient) CreatePlan(ctx context.Context, plan *PlanRecord) error {
	if err := p.DB.WithContext(ctx).Create(plan).Error; err != nil {
		return fmt.Errorf("create plan %q: %w", plan.Name, err)
	}
	return nil
}

func (p *PostgresClient) GetPlan(ctx context.Context, id uint) (*PlanRecord, error) {
	var plan PlanRecord
	if err := p.DB.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &plan, nil
}

func (p *PostgresClient) ListPlans(ctx context.Context) ([]PlanRecord, error) {
	var plans []PlanRecord
	if err := p.DB.WithContext(ctx).Order("id").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// UpdatePlan applies column changes and returns the updated plan.
func (p *PostgresClient) UpdatePlan(ctx context.Context, id uint, changes map[string]any) (*PlanRecord, error) {
	if len(changes) > 0 {
		tx := p.DB.WithContext(ctx).Model(&PlanRecord{}).Where("id = ?", id).Updates(changes)
		if tx.Error != nil {
			return nil, fmt.Errorf("update plan %d: %w", id, tx.Error)
		}
		if tx.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return p.GetPlan(ctx, id)
}

func (p *PostgresClient) DeletePlan(ctx context.Context, id uint) error {
	tx := p.DB.WithContext(ctx).Delete(&PlanRecord{}, id)
	if tx.Error != nil {
		return fmt.Errorf("delete plan %d: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
