package adapters

import (
	"strings"

	"github.com/assurline/assurline/internal/config"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	"go.uber.org/fx"
)

// Registry holds the configured aggregator adapters, keyed by name. Each
// aggregator is a tagged variant producing the same CanonicalEvent; there is
// no shape sniffing across aggregators.
type Registry struct {
	adapters map[string]paymentdomain.Adapter
}

type Params struct {
	fx.In

	Cfg config.Config
}

func NewRegistry(p Params) *Registry {
	r := &Registry{adapters: map[string]paymentdomain.Adapter{}}
	for _, a := range []paymentdomain.Adapter{
		NewGeneric(p.Cfg),
		NewCinetpay(p.Cfg),
		NewPaytech(p.Cfg),
		NewWave(p.Cfg),
	} {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (paymentdomain.Adapter, bool) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

var Module = fx.Module("payment.adapters",
	fx.Provide(NewRegistry),
)

// payload helpers shared by the adapters

func readString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func readMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key]; ok {
		if mm, ok := v.(map[string]any); ok {
			return mm
		}
	}
	return nil
}

func readBeneficiaries(v any) []paymentdomain.BeneficiaryData {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []paymentdomain.BeneficiaryData
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		b := paymentdomain.BeneficiaryData{
			Name:         readString(m, "name", "nom"),
			Relationship: readString(m, "relationship", "lien"),
			Rank:         i + 1,
		}
		if rank, ok := m["rank"].(float64); ok && rank > 0 {
			b.Rank = int(rank)
		}
		if b.Name != "" {
			out = append(out, b)
		}
	}
	return out
}
