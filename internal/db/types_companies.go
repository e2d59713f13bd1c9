package db

// Address holds the registered office address of a company. The source data
// frequently leaves parts blank, so every field is optional.
type Address struct {
	CareOf   string `json:"care_of"`
	POBox    string `json:"po_box"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2"`
	Town     string `json:"town"`
	County   string `json:"county"`
	Country  string `json:"country"`
	Postcode string `json:"postcode"`
}

// Company represents one company record from the Companies House basic data
// product. CompanyNumber is the unique business key; every other attribute is
// an optional scalar. The search vector derived from these fields is owned by
// the database trigger and never set by callers.
type Company struct {
	CompanyNumber     string  `json:"company_number"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	Status            string  `json:"status"`
	CountryOfOrigin   string  `json:"country_of_origin"`
	IncorporationDate string  `json:"incorporation_date"`
	SICCodes          string  `json:"sic_codes"`
	Address           Address `json:"address"`
}
