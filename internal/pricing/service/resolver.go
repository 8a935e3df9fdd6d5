package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smallbiznis/genstudio/internal/config"
	pricingdomain "github.com/smallbiznis/genstudio/internal/pricing/domain"
	"github.com/smallbiznis/genstudio/pkg/media"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Pricing *config.PricingConfigHolder
}

type Resolver struct {
	log     *zap.Logger
	pricing *config.PricingConfigHolder
}

func NewResolver(p Params) pricingdomain.Resolver {
	return &Resolver{
		log:     p.Log.Named("pricing.resolver"),
		pricing: p.Pricing,
	}
}

// Resolve computes the credit cost of a generation. It reads only the active
// price table and is deterministic for a given table.
func (r *Resolver) Resolve(ctx context.Context, quote pricingdomain.Quote) (int64, error) {
	if _, ok := media.ParseKind(string(quote.Kind)); !ok {
		return 0, pricingdomain.ErrInvalidKind
	}
	if quote.Override != nil && *quote.Override > 0 {
		return *quote.Override, nil
	}

	table := r.pricing.Get()
	fallback := table.Defaults[string(quote.Kind)]

	price, found := table.Model(quote.ModelKey)
	if !found {
		r.log.Warn("no price for model, using kind default",
			zap.String("kind", string(quote.Kind)),
			zap.String("model_key", quote.ModelKey),
			zap.Int64("credits", fallback),
		)
		return fallback, nil
	}

	opts := normalizeOptions(quote.Options)
	for _, name := range price.Required {
		if opts[strings.ToLower(name)] == "" {
			return 0, fmt.Errorf("%w: %s is required for %s", pricingdomain.ErrInvalidParameters, name, price.Key)
		}
	}

	cost, err := r.baseCost(price, opts)
	if err != nil {
		return 0, err
	}
	cost += surcharges(price, opts)

	if cost <= 0 {
		r.log.Warn("non-positive model price, using kind default",
			zap.String("model_key", quote.ModelKey),
			zap.Int64("credits", fallback),
		)
		return fallback, nil
	}
	return cost, nil
}

func (r *Resolver) baseCost(price config.ModelPrice, opts map[string]string) (int64, error) {
	if len(price.PerSecond) > 0 {
		resolution := option(price, opts, "resolution")
		rate, ok := price.PerSecond[resolution]
		if !ok {
			return 0, fmt.Errorf("%w: unsupported resolution %q for %s", pricingdomain.ErrInvalidParameters, resolution, price.Key)
		}
		seconds, err := strconv.ParseInt(option(price, opts, "duration"), 10, 64)
		if err != nil || seconds <= 0 {
			return 0, fmt.Errorf("%w: duration must be a positive number of seconds", pricingdomain.ErrInvalidParameters)
		}
		if rate > 0 && seconds > math.MaxInt64/rate {
			return 0, fmt.Errorf("%w: duration %d is too long for %s", pricingdomain.ErrInvalidParameters, seconds, price.Key)
		}
		return rate * seconds, nil
	}

	if len(price.VariantKeys) == 0 {
		return price.Base, nil
	}

	parts := make([]string, 0, len(price.VariantKeys))
	for _, key := range price.VariantKeys {
		if v := option(price, opts, key); v != "" {
			parts = append(parts, v)
		}
	}
	variant := strings.Join(parts, "-")
	if cost, ok := price.Variants[variant]; ok {
		return cost, nil
	}
	r.log.Warn("no price for variant, using model base",
		zap.String("model_key", price.Key),
		zap.String("variant", variant),
		zap.Int64("credits", price.Base),
	)
	return price.Base, nil
}

func surcharges(price config.ModelPrice, opts map[string]string) int64 {
	var total int64
	for name, byValue := range price.Surcharges {
		if v := opts[strings.ToLower(name)]; v != "" {
			total += byValue[v]
		}
	}
	return total
}

func option(price config.ModelPrice, opts map[string]string, key string) string {
	key = strings.ToLower(key)
	if v := opts[key]; v != "" {
		return v
	}
	for k, v := range price.Defaults {
		if strings.ToLower(k) == key {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return ""
}
