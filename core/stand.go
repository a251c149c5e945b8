package core

import "time"

// AllowedCategories is the closed set of categories a stand may advertise.
var AllowedCategories = []string{
	"Kindersachen", "Buecher", "Moebel", "Vintage", "Kleidung",
	"Haushalt", "Spielzeug", "Garten", "Werkzeug", "Elektronik", "Medien",
}

// Defaults applied to new stands when the caller leaves the field empty.
const (
	DefaultPLZ      = "90513"
	DefaultDistrict = "Kernstadt"
	DefaultTimeFrom = "10:00"
	DefaultTimeTo   = "16:00"
)

// Stand is a single flea-market stand. EditSecret is the owner token rooting
// ownership of the record; it is returned exactly once, at creation, and
// never serialized in public reads.
type Stand struct {
	ID         string    `json:"id"`
	Label      string    `json:"label,omitempty"`
	Address    string    `json:"address"`
	PLZ        string    `json:"plz"`
	District   string    `json:"district"`
	Desc       string    `json:"desc"`
	Categories []string  `json:"categories"`
	TimeFrom   string    `json:"time_from"`
	TimeTo     string    `json:"time_to"`
	Lat        *float64  `json:"lat,omitempty"`
	Lng        *float64  `json:"lng,omitempty"`
	Open       bool      `json:"open"`
	Approved   bool      `json:"approved"`
	CreatedAt  time.Time `json:"createdAt"`
	EditSecret string    `json:"editSecret"`
}

// StandPublic is the externally visible projection of a stand.
type StandPublic struct {
	ID         string    `json:"id"`
	Label      string    `json:"label,omitempty"`
	Address    string    `json:"address"`
	PLZ        string    `json:"plz"`
	District   string    `json:"district"`
	Desc       string    `json:"desc"`
	Categories []string  `json:"categories"`
	TimeFrom   string    `json:"time_from"`
	TimeTo     string    `json:"time_to"`
	Lat        *float64  `json:"lat,omitempty"`
	Lng        *float64  `json:"lng,omitempty"`
	Open       bool      `json:"open"`
	Approved   bool      `json:"approved"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Public strips the edit secret from a stand.
func (s Stand) Public() StandPublic {
	return StandPublic{
		ID:         s.ID,
		Label:      s.Label,
		Address:    s.Address,
		PLZ:        s.PLZ,
		District:   s.District,
		Desc:       s.Desc,
		Categories: s.Categories,
		TimeFrom:   s.TimeFrom,
		TimeTo:     s.TimeTo,
		Lat:        s.Lat,
		Lng:        s.Lng,
		Open:       s.Open,
		Approved:   s.Approved,
		CreatedAt:  s.CreatedAt,
	}
}

// CategoryAllowed reports whether a category is in the closed set.
func CategoryAllowed(category string) bool {
	for _, c := range AllowedCategories {
		if c == category {
			return true
		}
	}
	return false
}
