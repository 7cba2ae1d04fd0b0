package cityinfo

// SeedCities is the demo data set loaded by the in-memory store and the SQL seeds.
func SeedCities() []City {
	return []City{
		{
			ID:          1,
			Name:        "New York City",
			Description: "The one with that big park.",
			PointsOfInterest: []PointOfInterest{
				{ID: 1, CityID: 1, Name: "Central Park", Description: "The most visited urban park in the United States."},
				{ID: 2, CityID: 1, Name: "Empire State Building", Description: "A 102-story skyscraper located in Midtown Manhattan."},
			},
		},
		{
			ID:          2,
			Name:        "Antwerp",
			Description: "The one with the cathedral that was never really finished.",
			PointsOfInterest: []PointOfInterest{
				{ID: 3, CityID: 2, Name: "Cathedral of Our Lady", Description: "A Gothic style cathedral, conceived by architects Jan and Pieter Appelmans."},
				{ID: 4, CityID: 2, Name: "Antwerp Central Station", Description: "The the finest example of railway architecture in Belgium."},
			},
		},
		{
			ID:          3,
			Name:        "Paris",
			Description: "The one with that big tower.",
			PointsOfInterest: []PointOfInterest{
				{ID: 5, CityID: 3, Name: "Eiffel Tower", Description: "A wrought iron lattice tower on the Champ de Mars, named after engineer Gustave Eiffel."},
				{ID: 6, CityID: 3, Name: "The Louvre", Description: "The world's largest museum."},
			},
		},
	}
}
