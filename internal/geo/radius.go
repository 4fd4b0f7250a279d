package geo

// DefaultRadiusKm applies to categories missing from the radius table.
const DefaultRadiusKm = 2.0

// categoryRadiusKm maps report categories to their alert radius. Wide-impact
// hazards reach further than local infrastructure problems.
var categoryRadiusKm = map[string]float64{
	"Banjir":        5,
	"Longsor":       5,
	"Bencana Alam":  5,
	"Kebakaran":     1,
	"Jalan Rusak":   1,
	"Infrastruktur": 1,
	"Pohon":         1,
	"Sampah":        0.5,
}

// RadiusForCategory returns the alert radius in kilometres for a category.
// Lookup is exact; unknown categories get DefaultRadiusKm.
func RadiusForCategory(category string) float64 {
	if r, ok := categoryRadiusKm[category]; ok {
		return r
	}
	return DefaultRadiusKm
}
