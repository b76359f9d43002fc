package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
)

// Rule-match scoring. Specificity dominates: a rule naming both service and
// country always beats a partial or wildcard rule regardless of priority.
// Priority only orders rules of equal specificity.
const (
	bonusExactBoth      = 1000
	bonusServiceOnly    = 500
	bonusCountryOnly    = 250
	ruleCacheKey        = "active-rules"
	defaultRuleCacheTTL = 60 * time.Second
)

// RuleSource loads the active rule set. Satisfied by *repository.Queries.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]models.PricingRule, error)
}

// Quote is the priced outcome for one base cost.
type Quote struct {
	BaseCostMicros   int64
	ProfitMicros     int64
	FinalPriceMicros int64
	RuleID           *uuid.UUID // nil when the default markup applied
}

// PriceRequest pairs a base cost with the service/country it was quoted for.
type PriceRequest struct {
	BaseCostMicros int64
	ServiceCode    string
	Country        string
}

// Engine resolves a markup rule for each (service, country) pair and applies
// it to a provider base cost. Rules are cached briefly so a burst of orders
// does not hammer the rules table.
type Engine struct {
	rules          RuleSource
	cache          *gocache.Cache
	cacheTTL       time.Duration
	defaultPercent decimal.Decimal
}

func NewEngine(rules RuleSource, cacheTTL time.Duration, defaultMarkupPercent float64) *Engine {
	if cacheTTL <= 0 {
		cacheTTL = defaultRuleCacheTTL
	}
	return &Engine{
		rules:          rules,
		cache:          gocache.New(cacheTTL, 2*cacheTTL),
		cacheTTL:       cacheTTL,
		defaultPercent: decimal.NewFromFloat(defaultMarkupPercent),
	}
}

// CalculatePrice prices a single base cost for a service/country pair.
func (e *Engine) CalculatePrice(ctx context.Context, baseCostMicros int64, serviceCode, country string) (Quote, error) {
	rules, err := e.activeRules(ctx)
	if err != nil {
		return Quote{}, err
	}
	return e.quote(baseCostMicros, serviceCode, country, rules), nil
}

// CalculatePrices prices a batch against one snapshot of the rule set. The
// result for each entry is identical to a CalculatePrice call over the same
// snapshot.
func (e *Engine) CalculatePrices(ctx context.Context, reqs []PriceRequest) ([]Quote, error) {
	rules, err := e.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	quotes := make([]Quote, len(reqs))
	for i, r := range reqs {
		quotes[i] = e.quote(r.BaseCostMicros, r.ServiceCode, r.Country, rules)
	}
	return quotes, nil
}

// InvalidateRules drops the cached rule snapshot. Called after admin edits so
// new rules take effect without waiting out the TTL.
func (e *Engine) InvalidateRules() {
	e.cache.Delete(ruleCacheKey)
}

func (e *Engine) activeRules(ctx context.Context) ([]models.PricingRule, error) {
	if cached, ok := e.cache.Get(ruleCacheKey); ok {
		return cached.([]models.PricingRule), nil
	}
	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pricing rules: %w", err)
	}
	e.cache.Set(ruleCacheKey, rules, e.cacheTTL)
	return rules, nil
}

func (e *Engine) quote(baseCostMicros int64, serviceCode, country string, rules []models.PricingRule) Quote {
	rule := bestMatch(serviceCode, country, rules)
	if rule == nil {
		profit := domain.ApplyPercent(baseCostMicros, e.defaultPercent)
		zap.L().Debug("no pricing rule matched, using default markup",
			zap.String("service", serviceCode),
			zap.String("country", country),
		)
		return Quote{
			BaseCostMicros:   baseCostMicros,
			ProfitMicros:     profit,
			FinalPriceMicros: baseCostMicros + profit,
		}
	}

	var profit int64
	switch rule.ProfitType {
	case domain.ProfitTypeFixed:
		// Fixed markups are stated in currency units.
		profit = domain.FromDecimal(decimal.NewFromFloat(rule.ProfitValue))
	default:
		profit = domain.ApplyPercent(baseCostMicros, decimal.NewFromFloat(rule.ProfitValue))
	}

	id := rule.ID
	return Quote{
		BaseCostMicros:   baseCostMicros,
		ProfitMicros:     profit,
		FinalPriceMicros: baseCostMicros + profit,
		RuleID:           &id,
	}
}

// bestMatch picks the most specific applicable rule, ordering by specificity
// bonus, then priority, then smallest ID so repeated calls over the same rule
// set always pick the same rule.
func bestMatch(serviceCode, country string, rules []models.PricingRule) *models.PricingRule {
	matched := make([]models.PricingRule, 0, len(rules))
	for _, r := range rules {
		if ruleApplies(r, serviceCode, country) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	sort.SliceStable(matched, func(i, j int) bool {
		bi, bj := specificityBonus(matched[i]), specificityBonus(matched[j])
		if bi != bj {
			return bi > bj
		}
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return &matched[0]
}

func ruleApplies(r models.PricingRule, serviceCode, country string) bool {
	if r.ServiceCode != nil && *r.ServiceCode != serviceCode {
		return false
	}
	if r.Country != nil && *r.Country != country {
		return false
	}
	return true
}

func specificityBonus(r models.PricingRule) int {
	switch {
	case r.ServiceCode != nil && r.Country != nil:
		return bonusExactBoth
	case r.ServiceCode != nil:
		return bonusServiceOnly
	case r.Country != nil:
		return bonusCountryOnly
	default:
		return 0
	}
}
