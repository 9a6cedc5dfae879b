package payment

var packages = []Package{
	{ID: "starter", Name: "Starter", Credits: 100, PriceCents: 499, Currency: "USD"},
	{ID: "standard", Name: "Standard", Credits: 250, PriceCents: 999, Currency: "USD"},
	{ID: "pro", Name: "Pro", Credits: 600, PriceCents: 1999, Currency: "USD"},
}

// ListPackages returns the packages on sale, cheapest first.
func ListPackages() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}

// FindPackage looks up a package by id.
func FindPackage(id string) (Package, bool) {
	for _, p := range packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}
