// Package model defines the records shared by the store, the confidence
// engine, the USSD menus and the HTTP API.
package model

import "time"

// CropCategory groups crops for reporting.
type CropCategory string

const (
	CropCategoryCereals    CropCategory = "cereals"
	CropCategoryLegumes    CropCategory = "legumes"
	CropCategoryTubers     CropCategory = "tubers"
	CropCategoryVegetables CropCategory = "vegetables"
	CropCategoryFruits     CropCategory = "fruits"
	CropCategoryOther      CropCategory = "other"
)

// Crop is a traded commodity. Position fixes its place in menus.
type Crop struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	NameSwahili string       `json:"name_swahili" yaml:"name_swahili"`
	Unit        string       `json:"unit" yaml:"unit"`
	Category    CropCategory `json:"category" yaml:"category"`
	Position    int          `json:"position" yaml:"position"`
	CreatedAt   time.Time    `json:"created_at" yaml:"-"`
}

// DisplayName returns the crop name in the given language.
func (c Crop) DisplayName(lang Language) string {
	if lang == LanguageSwahili && c.NameSwahili != "" {
		return c.NameSwahili
	}
	return c.Name
}

// Market is a physical trading venue.
type Market struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	County    string    `json:"county" yaml:"county"`
	Region    string    `json:"region" yaml:"region"`
	Active    bool      `json:"active" yaml:"active"`
	Position  int       `json:"position" yaml:"position"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}
