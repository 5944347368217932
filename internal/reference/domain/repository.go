package domain

import "context"

type Repository interface {
	ListCountries(ctx context.Context) ([]Country, error)
	// CountryCodes returns the set of known ISO 3166-1 alpha-2 codes,
	// used to validate region records against reference data.
	CountryCodes(ctx context.Context) (map[string]bool, error)
}
