package session

// Context is the conversation state threaded through one full action
// sequence and persisted between turns. Fields are optional; actions populate
// them opportunistically and later actions (or the NLU engine's server-side
// rules) consume them.
//
// The JSON keys are part of the converse-engine contract: the trained stories
// reference them by name, so they must not be renamed.
type Context struct {
	// Entity-derived fields, set by the merge action.
	BeerStyle string `json:"beerStyle,omitempty"`
	BeerName  string `json:"beerName,omitempty"`
	Location  string `json:"loc,omitempty"`

	// Catalog lookups.
	Beers           string            `json:"beers,omitempty"`
	BeerNamesAndIDs map[string]string `json:"beerNamesAndIds,omitempty"`
	Description     string            `json:"description,omitempty"`
	RelatedBeers    string            `json:"related_beers,omitempty"`
	PopularBeers    string            `json:"popular_beers,omitempty"`

	// Taproom extras.
	Forecast  string `json:"forecast,omitempty"`
	Events    string `json:"events,omitempty"`
	Locations string `json:"locations,omitempty"`
}

// Clone returns a deep copy of the context.
func (c *Context) Clone() *Context {
	if c == nil {
		return &Context{}
	}
	clone := *c
	if c.BeerNamesAndIDs != nil {
		clone.BeerNamesAndIDs = make(map[string]string, len(c.BeerNamesAndIDs))
		for k, v := range c.BeerNamesAndIDs {
			clone.BeerNamesAndIDs[k] = v
		}
	}
	return &clone
}
