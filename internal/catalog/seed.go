package catalog

import (
	_ "embed"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sokoprice/internal/model"
)

//go:embed seed.yaml
var seedYAML []byte

// SeedSource is a sample reporter shipped with the seed data.
type SeedSource struct {
	Name        string           `yaml:"name"`
	PhoneNumber string           `yaml:"phone_number"`
	Role        model.SourceRole `yaml:"role"`
	Reliability float64          `yaml:"reliability"`
}

// Seed is the bundled starter catalog.
type Seed struct {
	Crops      []model.Crop       `yaml:"crops"`
	Markets    []model.Market     `yaml:"markets"`
	Sources    []SeedSource       `yaml:"sources"`
	BasePrices map[string]float64 `yaml:"base_prices"`
}

// LoadSeed parses the embedded seed catalog.
func LoadSeed() (*Seed, error) {
	return ParseSeed(seedYAML)
}

// ParseSeed parses a seed catalog document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "catalog: parse seed")
	}
	if len(s.Crops) == 0 || len(s.Markets) == 0 {
		return nil, eris.New("catalog: seed needs at least one crop and one market")
	}
	for _, src := range s.Sources {
		if !src.Role.Valid() {
			return nil, eris.Errorf("catalog: seed source %q has unknown role %q", src.Name, src.Role)
		}
	}
	return &s, nil
}

// Model converts a seed source into a source record.
func (s SeedSource) Model() model.Source {
	return model.Source{
		Name:             s.Name,
		PhoneNumber:      s.PhoneNumber,
		Role:             s.Role,
		ReliabilityScore: s.Reliability,
		Status:           model.SourceStatusActive,
	}
}

// SampleHistory generates approved daily reports for every crop and market
// over the given number of days ending at now, with up to ±10% noise around
// the base price. Reports are attributed round-robin to sourceIDs.
func (s *Seed) SampleHistory(days int, now time.Time, sourceIDs []string, rng *rand.Rand) []model.PriceReport {
	if days <= 0 || len(sourceIDs) == 0 {
		return nil
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(now.UnixNano()), 0))
	}

	var out []model.PriceReport
	i := 0
	for day := days - 1; day >= 0; day-- {
		date := now.AddDate(0, 0, -day).Truncate(time.Hour)
		for _, crop := range s.Crops {
			base, ok := s.BasePrices[crop.ID]
			if !ok {
				continue
			}
			for _, market := range s.Markets {
				if !market.Active {
					continue
				}
				noise := (rng.Float64()*2 - 1) * 0.1
				out = append(out, model.PriceReport{
					CropID:   crop.ID,
					MarketID: market.ID,
					SourceID: sourceIDs[i%len(sourceIDs)],
					Price:    math.Round(base * (1 + noise)),
					Date:     date,
					Approved: true,
					Channel:  model.ChannelWeb,
				})
				i++
			}
		}
	}
	return out
}
