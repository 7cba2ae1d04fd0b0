package cityinfo

// City owns its points of interest.
type City struct {
	ID               int
	Name             string
	Description      string
	PointsOfInterest []PointOfInterest
}

// PointOfInterest belongs to exactly one City; CityID is a back-reference.
type PointOfInterest struct {
	ID          int
	CityID      int
	Name        string
	Description string
}

func (c City) clone() City {
	out := c
	if c.PointsOfInterest != nil {
		out.PointsOfInterest = append([]PointOfInterest(nil), c.PointsOfInterest...)
	}
	return out
}

// CityDto is the full city representation.
type CityDto struct {
	ID                       int                  `json:"id"`
	Name                     string               `json:"name"`
	Description              string               `json:"description,omitempty"`
	NumberOfPointsOfInterest int                  `json:"numberOfPointsOfInterest"`
	PointsOfInterest         []PointOfInterestDto `json:"pointsOfInterest"`
}

// CityWithoutPointsOfInterestDto is the reduced city representation.
type CityWithoutPointsOfInterestDto struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type PointOfInterestDto struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PointOfInterestForCreation is the POST body. It carries no id.
type PointOfInterestForCreation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PointOfInterestForUpdate is the PUT body and the PATCH target.
type PointOfInterestForUpdate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func NewCityDto(c City) CityDto {
	pois := make([]PointOfInterestDto, 0, len(c.PointsOfInterest))
	for _, p := range c.PointsOfInterest {
		pois = append(pois, NewPointOfInterestDto(p))
	}
	return CityDto{
		ID:                       c.ID,
		Name:                     c.Name,
		Description:              c.Description,
		NumberOfPointsOfInterest: len(pois),
		PointsOfInterest:         pois,
	}
}

func NewCityWithoutPointsOfInterestDto(c City) CityWithoutPointsOfInterestDto {
	return CityWithoutPointsOfInterestDto{ID: c.ID, Name: c.Name, Description: c.Description}
}

func NewCityWithoutPointsOfInterestDtos(cs []City) []CityWithoutPointsOfInterestDto {
	out := make([]CityWithoutPointsOfInterestDto, 0, len(cs))
	for _, c := range cs {
		out = append(out, NewCityWithoutPointsOfInterestDto(c))
	}
	return out
}

func NewPointOfInterestDto(p PointOfInterest) PointOfInterestDto {
	return PointOfInterestDto{ID: p.ID, Name: p.Name, Description: p.Description}
}

func NewPointOfInterestDtos(ps []PointOfInterest) []PointOfInterestDto {
	out := make([]PointOfInterestDto, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewPointOfInterestDto(p))
	}
	return out
}

// NewPointOfInterest builds an unsaved entity from a creation body.
func NewPointOfInterest(cityID int, in PointOfInterestForCreation) PointOfInterest {
	return PointOfInterest{CityID: cityID, Name: in.Name, Description: in.Description}
}

// ForUpdate projects the mutable fields of p.
func (p PointOfInterest) ForUpdate() PointOfInterestForUpdate {
	return PointOfInterestForUpdate{Name: p.Name, Description: p.Description}
}

// ApplyUpdate copies the mutable fields of u onto p.
func (p *PointOfInterest) ApplyUpdate(u PointOfInterestForUpdate) {
	p.Name = u.Name
	p.Description = u.Description
}
