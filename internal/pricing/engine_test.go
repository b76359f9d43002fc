package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
)

type stubRuleSource struct {
	rules []models.PricingRule
	calls int
}

func (s *stubRuleSource) ListActiveRules(ctx context.Context) ([]models.PricingRule, error) {
	s.calls++
	return s.rules, nil
}

func strPtr(s string) *string { return &s }

func percentRule(id byte, service, country *string, value float64, priority int32) models.PricingRule {
	return models.PricingRule{
		ID:          uuid.UUID{id},
		ServiceCode: service,
		Country:     country,
		ProfitType:  domain.ProfitTypePercentage,
		ProfitValue: value,
		Priority:    priority,
		IsActive:    true,
	}
}

func TestSpecificRuleBeatsHigherPriorityWildcard(t *testing.T) {
	specific := percentRule(1, strPtr("whatsapp"), strPtr("US"), 20, 5)
	wildcard := percentRule(2, nil, nil, 10, 100)
	engine := NewEngine(&stubRuleSource{rules: []models.PricingRule{wildcard, specific}}, time.Minute, 20)

	q, err := engine.CalculatePrice(context.Background(), 100_000_000, "whatsapp", "US")
	require.NoError(t, err)
	require.Equal(t, int64(20_000_000), q.ProfitMicros)
	require.Equal(t, int64(120_000_000), q.FinalPriceMicros)
	require.NotNil(t, q.RuleID)
	require.Equal(t, specific.ID, *q.RuleID)
}

func TestDefaultMarkupWhenNoRuleMatches(t *testing.T) {
	rule := percentRule(1, strPtr("telegram"), strPtr("GB"), 50, 1)
	engine := NewEngine(&stubRuleSource{rules: []models.PricingRule{rule}}, time.Minute, 20)

	q, err := engine.CalculatePrice(context.Background(), 50_000_000, "unknown_service", "ZZ")
	require.NoError(t, err)
	require.Equal(t, int64(10_000_000), q.ProfitMicros)
	require.Equal(t, int64(60_000_000), q.FinalPriceMicros)
	require.Nil(t, q.RuleID)
}

func TestSpecificityOrdering(t *testing.T) {
	serviceOnly := percentRule(1, strPtr("whatsapp"), nil, 15, 1)
	countryOnly := percentRule(2, nil, strPtr("US"), 25, 99)
	engine := NewEngine(&stubRuleSource{rules: []models.PricingRule{countryOnly, serviceOnly}}, time.Minute, 20)

	q, err := engine.CalculatePrice(context.Background(), 100_000_000, "whatsapp", "US")
	require.NoError(t, err)
	require.Equal(t, serviceOnly.ID, *q.RuleID)
	require.Equal(t, int64(15_000_000), q.ProfitMicros)
}

func TestPriorityBreaksEqualSpecificity(t *testing.T) {
	low := percentRule(1, strPtr("whatsapp"), strPtr("US"), 10, 1)
	high := percentRule(2, strPtr("whatsapp"), strPtr("US"), 30, 9)
	engine := NewEngine(&stubRuleSource{rules: []models.PricingRule{low, high}}, time.Minute, 20)

	q, err := engine.CalculatePrice(context.Background(), 100_000_000, "whatsapp", "US")
	require.NoError(t, err)
	require.Equal(t, high.ID, *q.RuleID)
}

func TestSmallestIDBreaksFullTie(t *testing.T) {
	a := percentRule(1, strPtr("whatsapp"), strPtr("US"), 10, 5)
	b := percentRule(2, strPtr("whatsapp"), strPtr("US"), 30, 5)
	engine := NewEngine(&stubRuleSource{rules: []models.PricingRule{b, a}}, time.Minute, 20)

	q, err := engine.CalculatePrice(context.Background(), 100_000_000, "whatsapp", "US")
	require.NoError(t, err)
	require.Equal(t, a.ID, *q.RuleID)
}

func TestFixedMarkupStatedInCurrencyUnits(t *testing.T) {
	rule := models.PricingRule{
		ID:          uuid.UUID{1},
		ServiceCode: strPtr("whatsapp"),
		ProfitType:  domain.ProfitTypeFixed,
		ProfitValue: 0.5,
		Priority:    1,
		IsActive:    true,
	}
	engine := NewEngine(&stubRuleSource{rules: []models.PricingRule{rule}}, time.Minute, 20)

	q, err := engine.CalculatePrice(context.Background(), 2_000_000, "whatsapp", "US")
	require.NoError(t, err)
	require.Equal(t, int64(500_000), q.ProfitMicros)
	require.Equal(t, int64(2_500_000), q.FinalPriceMicros)
}

func TestBatchMatchesSingleCalls(t *testing.T) {
	rules := []models.PricingRule{
		percentRule(1, strPtr("whatsapp"), strPtr("US"), 20, 5),
		percentRule(2, strPtr("telegram"), nil, 35, 2),
		percentRule(3, nil, nil, 10, 1),
	}
	engine := NewEngine(&stubRuleSource{rules: rules}, time.Minute, 20)

	reqs := []PriceRequest{
		{BaseCostMicros: 100_000_000, ServiceCode: "whatsapp", Country: "US"},
		{BaseCostMicros: 40_000_000, ServiceCode: "telegram", Country: "GB"},
		{BaseCostMicros: 7_500_000, ServiceCode: "discord", Country: "NG"},
		{BaseCostMicros: 0, ServiceCode: "whatsapp", Country: "US"},
	}
	batch, err := engine.CalculatePrices(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, batch, len(reqs))

	for i, r := range reqs {
		single, err := engine.CalculatePrice(context.Background(), r.BaseCostMicros, r.ServiceCode, r.Country)
		require.NoError(t, err)
		require.Equal(t, single, batch[i], "entry %d", i)
	}
}

func TestRuleCacheAndInvalidate(t *testing.T) {
	src := &stubRuleSource{rules: []models.PricingRule{percentRule(1, nil, nil, 10, 1)}}
	engine := NewEngine(src, time.Minute, 20)

	_, err := engine.CalculatePrice(context.Background(), 1_000_000, "whatsapp", "US")
	require.NoError(t, err)
	_, err = engine.CalculatePrice(context.Background(), 1_000_000, "telegram", "GB")
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	engine.InvalidateRules()
	_, err = engine.CalculatePrice(context.Background(), 1_000_000, "whatsapp", "US")
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestInactiveRulesNeverReachScoring(t *testing.T) {
	// The repository query filters on is_active; the engine prices whatever
	// snapshot it is handed, so an empty snapshot falls through to default.
	engine := NewEngine(&stubRuleSource{}, time.Minute, 20)

	q, err := engine.CalculatePrice(context.Background(), 10_000_000, "whatsapp", "US")
	require.NoError(t, err)
	require.Nil(t, q.RuleID)
	require.Equal(t, int64(2_000_000), q.ProfitMicros)
}
