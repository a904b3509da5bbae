package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"bin-dates/config"
	"bin-dates/models"
	"bin-dates/scraper/ambervalley"
	"bin-dates/services"
	"bin-dates/utils"
)

var (
	errBadPostcode  = errors.New("that does not look like a UK postcode, e.g. DE5 1AA")
	errNoProperties = errors.New("no properties found for that postcode")
	errNoMatch      = errors.New("no matching address found")
	errAmbiguous    = errors.New("multiple matching addresses found, please be more specific")
)

// propertyLookup is what the CLI flows need from the council client.
type propertyLookup interface {
	LookupByPostcode(ctx context.Context, postcode string) ([]models.Property, error)
}

// lookupAndResolve lists the properties at a postcode and narrows them with
// the selector. An empty postcode result is an error of its own so the user
// is told to check the postcode rather than the address.
func lookupAndResolve(ctx context.Context, client propertyLookup, postcode, selector string) (models.Match, error) {
	if !services.LooksLikePostcode(postcode) {
		return models.Match{}, fmt.Errorf("%q: %w", postcode, errBadPostcode)
	}
	properties, err := client.LookupByPostcode(ctx, services.NormalisePostcode(postcode))
	if err != nil {
		return models.Match{}, err
	}
	if len(properties) == 0 {
		return models.Match{}, errNoProperties
	}
	return ambervalley.ResolveSelector(properties, selector), nil
}

func matchError(m models.Match) error {
	switch m.Kind {
	case models.MatchNone:
		return errNoMatch
	case models.MatchAmbiguous:
		return fmt.Errorf("%w (%d candidates)", errAmbiguous, len(m.Candidates))
	}
	return nil
}

func listAddresses(ctx context.Context, client propertyLookup, postcode string, w io.Writer) int {
	if !services.LooksLikePostcode(postcode) {
		fmt.Fprintf(w, "%q: %v\n", postcode, errBadPostcode)
		return 2
	}
	properties, err := client.LookupByPostcode(ctx, services.NormalisePostcode(postcode))
	if err != nil {
		fmt.Fprintf(w, "Service unavailable: %v\n", err)
		return 1
	}
	if len(properties) == 0 {
		fmt.Fprintln(w, errNoProperties)
		return 3
	}
	for _, p := range properties {
		fmt.Fprintf(w, "%-14s %s\n", p.UPRN, p.AddressComma)
	}
	return 0
}

// resolve walks the set-up flow: postcode, then address selector,
// then a test fetch of the collection dates before the UPRN is handed out.
func resolve(ctx context.Context, cfg *config.Config, client *ambervalley.Client, logger *utils.Logger, postcode, selector string, w io.Writer) int {
	match, err := lookupAndResolve(ctx, client, postcode, selector)
	switch {
	case errors.Is(err, ambervalley.ErrUnavailable):
		fmt.Fprintf(w, "Service unavailable: %v\n", err)
		return 1
	case errors.Is(err, errBadPostcode):
		fmt.Fprintln(w, err)
		return 2
	case err != nil:
		fmt.Fprintln(w, err)
		return 3
	}

	switch match.Kind {
	case models.MatchNone:
		fmt.Fprintln(w, errNoMatch)
		return 3
	case models.MatchAmbiguous:
		fmt.Fprintf(w, "%v\nFound %d properties:\n", errAmbiguous, len(match.Candidates))
		for _, p := range match.Candidates {
			fmt.Fprintf(w, "  %s\n", p.AddressComma)
		}
		return 3
	}

	result, err := client.FetchDates(ctx, match.UPRN)
	if err != nil {
		fmt.Fprintf(w, "Found uprn %s but its collection dates are unavailable: %v\n", match.UPRN, err)
		return 1
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Warn("Falling back to local time: %v", err)
		loc = nil
	}
	svc := services.NewSummaryService(logger)
	svc.Print(w, svc.Generate(match.UPRN, match.Candidates[0].AddressComma, *result, services.NewDayPolicy(loc)))

	fmt.Fprintf(w, "POSTCODE=%s\nPROPERTY_SELECTOR=%s\nPROPERTY_UPRN=%s\n",
		services.NormalisePostcode(postcode), selector, match.UPRN)
	return 0
}
