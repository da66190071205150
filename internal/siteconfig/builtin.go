package siteconfig

const listingRow = ".listingRow"

func builtinSites() []SiteConfig {
	return []SiteConfig{
		{
			Name: "alumni",
			Common: Common{
				PageParam:          "page",
				ContainerSelector:  listingRow,
				PaginationSelector: DefaultPaginationSelector,
				Fields: Fields{
					{Name: "name", Selectors: SelectorList{".nameSection a.name"}},
					{Name: "school", Selectors: SelectorList{".nameSection li a[href*='/school/']"}},
					{Name: "bio", Selectors: SelectorList{".textDespHolder p"}},
					{Name: "profile_url", Selectors: SelectorList{".nameSection a.name", ".viewProfileBtn"}},
				},
			},
			Simple: &Simple{
				BaseURL:   "https://www.teachfornepal.org/tfn/alumni/",
				OutputKey: "alumni",
			},
		},
		{
			Name: "fellows",
			Common: Common{
				PageParam:          "page",
				ContainerSelector:  listingRow,
				PaginationSelector: DefaultPaginationSelector,
				Fields: Fields{
					{Name: "name", Selectors: SelectorList{".nameSection a.name"}},
					{Name: "bio", Selectors: SelectorList{".textDespHolder p"}},
					{Name: "profile_url", Selectors: SelectorList{".nameSection a.name", ".viewProfileBtn"}},
				},
			},
			Simple: &Simple{
				BaseURL:   "https://www.teachfornepal.org/tfn/fellow/",
				OutputKey: "fellows",
			},
		},
		{
			Name: "schools",
			Common: Common{
				PageParam:          "page",
				ContainerSelector:  listingRow,
				PaginationSelector: DefaultPaginationSelector,
				Fields: Fields{
					{Name: "name", Selectors: SelectorList{".nameSection a.name"}},
					{Name: "location", Selectors: SelectorList{".nameSection li:nth-child(2)"}},
					{Name: "bio", Selectors: SelectorList{".textDespHolder p"}},
					{Name: "profile_url", Selectors: SelectorList{".nameSection a.name"}},
				},
			},
			Templated: &Templated{
				BaseURLTemplate:   "https://www.teachfornepal.org/tfn/school/district/{district}/",
				Districts:         []string{"dang", "tanahun", "parsa", "dhanusha", "sindhupalchowk"},
				OutputKeyTemplate: "schools_{district}",
			},
		},
	}
}

// Builtin returns the registry of the default Teach For Nepal listings.
func Builtin() *Registry {
	r, err := NewRegistry(builtinSites()...)
	if err != nil {
		panic("siteconfig: invalid built-in site: " + err.Error())
	}
	return r
}
