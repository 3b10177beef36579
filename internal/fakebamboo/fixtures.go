package fakebamboo

import _ "embed"

// GoodEatsCSV is a 19-row, 15-column survey of meals.
//
//go:embed testdata/good_eats.csv
var GoodEatsCSV []byte

// GoodEatsSchema is the SDF schema of GoodEatsCSV.
//
//go:embed testdata/good_eats.schema.json
var GoodEatsSchema []byte

// GoodEats dimensions.
const (
	GoodEatsRows    = 19
	GoodEatsColumns = 15
)
