package entities

// Venue is one of the event spaces shown on the website and known to the assistant
type Venue struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Location  string   `json:"location"`
	Vibe      string   `json:"vibe"`
	Details   string   `json:"details"`
	Features  []string `json:"features"`
	Capacity  string   `json:"capacity"`
	Advantage string   `json:"advantage"`
	Pricing   string   `json:"pricing"`
	Image     string   `json:"image"`
}

// Service is an in-house offering listed next to the venues
type Service struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Venues is the shared content table rendered by the site pages.
var Venues = []Venue{
	{
		ID:       "vault",
		Name:     "The Vault Ballroom",
		Location: "Burlington, NJ",
		Vibe:     "Historic Luxury",
		Details:  "Our flagship historic-luxury destination. Housed in a bank building dating back to 1677, this venue offers unparalleled cobblestone charm and architectural authenticity that modern halls simply cannot replicate.",
		Features: []string{
			"Original walk-in bank vaults with 3-ton doors (photo backdrop)",
			"Manicured gardens with six-pillar runway for outdoor ceremonies",
			"Historic cast stone columns and cast iron canopy",
			"Vault Room II: Intimate 100-guest top-floor space",
		},
		Capacity:  "Main Ballroom: 250 | Vault Room II: 100",
		Advantage: "Rare 5:00 AM alcohol license. One-of-a-kind historic aesthetic creates unforgettable destination events.",
		Pricing:   "Saturday rates from $3,795",
		Image:     "/images/venues/vault-ballroom.jpg",
	},
	{
		ID:       "liberty",
		Name:     "Mae’s Liberty Palace",
		Location: "Franklin Mills, Philadelphia",
		Vibe:     "Mid-Market Powerhouse",
		Details:  "Our sophisticated mid-market solution. A versatile 4,000 sq. ft. open-concept facility positioned as a regional powerhouse for celebrations requiring premium space with superior accessibility.",
		Features: []string{
			"Abundant natural light ideal for daytime showers and brunches",
			"Outside patio perfect for cocktail hours and outdoor ceremonies",
			"Ample free on-site parking (rare in Philadelphia area)",
			"Open floor plan for versatile layouts and thematic designs",
		},
		Capacity:  "Up to 210 guests",
		Advantage: "Strategic location near I-95 corridor and local hotels. Unmatched parking availability for regional guests.",
		Pricing:   "Weekend from $3,000",
		Image:     "/images/venues/liberty-palace.jpg",
	},
	{
		ID:       "banquet",
		Name:     "Natasha Mae’s Banquet Facility",
		Location: "Frankford, Philadelphia",
		Vibe:     "The Urban Foundation",
		Details:  "Our high-frequency community hub. A cozy and elegant urban space specifically designed to avoid the \"cavernous\" feel, perfect for intimate local gatherings and neighborhood celebrations.",
		Features: []string{
			"Intimate, warm atmosphere (50-110 guests)",
			"Premier transit-oriented accessibility",
			"Just 0.2 miles from SEPTA Church Station",
			"Affordable community rates with zero parking hassles",
		},
		Capacity:  "Up to 110 guests",
		Advantage: "Unbeatable urban convenience for local guests. Highest accessibility at the lowest investment.",
		Pricing:   "Weekday from $1,000",
		Image:     "/images/venues/banquet-facility.jpg",
	},
}

// Services lists the in-house offerings.
var Services = []Service{
	{
		Title:       "Natasha’s Heavenly Designs",
		Description: "Our creative backbone offering spectacular in-house floral and decor packages—from Harlem Nights/Gatsby to custom Marvel children's themes.",
		Icon:        "Flower",
	},
	{
		Title:       "Divine Dining",
		Description: "In-house catering providing extensive menus including vegan and gluten-free options, maintaining the highest standards for every palate.",
		Icon:        "Utensils",
	},
	{
		Title:       "Personal Event Management",
		Description: "Every occasion is guided by a dedicated Personal Event Manager, ensuring your vision is realized with professionalism and heart.",
		Icon:        "UserCheck",
	},
}

// FindVenue returns the venue with the given id
func FindVenue(id string) (Venue, bool) {
	for _, v := range Venues {
		if v.ID == id {
			return v, true
		}
	}
	return Venue{}, false
}
