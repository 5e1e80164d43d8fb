package featureflags

import (
	"context"

	"gato-backoffice/pkg/config"
	"gato-backoffice/pkg/logger"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// Kill switches. A flag that is missing or unreachable counts as enabled.
const (
	PromoRedemption = "promo_redemption"
)

type FeatureFlag interface {
	// Enabled reports whether feature is on for identifier.
	Enabled(ctx context.Context, feature, identifier string) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Enabled(ctx context.Context, feature, identifier string) bool {
	if s.client == nil {
		return true
	}

	log := logger.FromContext(ctx).With(zap.String("feature", feature))
	flags, err := s.client.GetIdentityFlags(identifier, nil)
	if err != nil {
		log.Warn("feature flag lookup failed, assuming enabled", zap.Error(err))
		return true
	}

	on, err := flags.IsFeatureEnabled(feature)
	if err != nil {
		return true
	}
	return on
}

// Static is a fixed flag set for tests and local runs.
type Static map[string]bool

func (s Static) Enabled(_ context.Context, feature, _ string) bool {
	on, ok := s[feature]
	return !ok || on
}
