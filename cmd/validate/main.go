// Command validate checks a processed output directory for internal
// consistency: the combined file covers every configured region, each
// per-region file agrees with its combined row, and every derived field
// matches the value implied by the stored suitability score.
//
// Usage:
//
//	go run ./cmd/validate -output-dir data/processed [-regions regions.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/go-cmp/cmp"

	"github.com/couchcryptid/burn-suitability-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/burn-suitability-etl/internal/config"
	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	outputDir := flag.String("output-dir", "", "processed output directory to validate")
	regions := flag.String("regions", "", "optional YAML region table (defaults to the built-in regions)")
	flag.Parse()

	if *outputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*outputDir, *regions); code != 0 {
		os.Exit(code)
	}
}

func run(outputDir, regionsFile string) int {
	ctx := context.Background()

	reg, err := config.LoadRegistry(regionsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	store := csvstore.NewStore(outputDir)
	combined, err := store.LoadCombined(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load combined snapshot: %v\n", err)
		return 1
	}

	fmt.Println("=== Burn Suitability Output Validation ===")
	fmt.Println()

	phases := validate(ctx, reg, store, combined)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Regions: %d configured, %d in %s\n", reg.Len(), len(combined), csvstore.CombinedFile)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// regionLoader reads a single per-region snapshot.
type regionLoader interface {
	LoadRegion(ctx context.Context, id string) (domain.RegionSnapshot, error)
}

func validate(ctx context.Context, reg *domain.Registry, store regionLoader, combined []domain.RegionSnapshot) []*phase {
	return []*phase{
		validateCoverage(reg, combined),
		validateRegionFiles(ctx, store, combined),
		validateDerivedFields(combined),
	}
}

// validateCoverage checks the combined file holds exactly the configured
// regions, in registry order, with matching names and center coordinates.
func validateCoverage(reg *domain.Registry, combined []domain.RegionSnapshot) *phase {
	p := &phase{name: "Phase 1: Region coverage"}

	seen := make(map[string]bool, len(combined))
	for _, s := range combined {
		if seen[s.ID] {
			p.errorf("%s: duplicate row", s.ID)
			continue
		}
		seen[s.ID] = true

		region, ok := reg.Lookup(s.ID)
		if !ok {
			p.errorf("%s: not a configured region", s.ID)
			continue
		}
		if s.Name != region.Name {
			p.errorf("%s: name %q, want %q", s.ID, s.Name, region.Name)
		}
		if want := domain.FormatCoordinates(region.Bounds.Center()); s.Coordinates != want {
			p.errorf("%s: coordinates %q, want %q", s.ID, s.Coordinates, want)
		}
	}

	for i, region := range reg.Regions() {
		if !seen[region.ID] {
			p.errorf("%s: missing from %s", region.ID, csvstore.CombinedFile)
			continue
		}
		if i < len(combined) && combined[i].ID != region.ID {
			p.errorf("row %d: id %s, want %s (registry order)", i+1, combined[i].ID, region.ID)
		}
	}
	return p
}

// validateRegionFiles checks every per-region file matches its combined row.
func validateRegionFiles(ctx context.Context, store regionLoader, combined []domain.RegionSnapshot) *phase {
	p := &phase{name: "Phase 2: Per-region file parity"}
	for _, want := range combined {
		got, err := store.LoadRegion(ctx, want.ID)
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			p.errorf("%s: %s missing", want.ID, csvstore.RegionFile(want.ID))
			continue
		}
		if err != nil {
			p.errorf("%s: %v", want.ID, err)
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			p.errorf("%s: region file differs from combined row (-combined +region):\n%s", want.ID, diff)
		}
	}
	return p
}

// validateDerivedFields recomputes every field that follows from the
// suitability score or fire count.
func validateDerivedFields(combined []domain.RegionSnapshot) *phase {
	p := &phase{name: "Phase 3: Derived score consistency"}
	for _, s := range combined {
		for _, problem := range domain.CheckSnapshot(s) {
			p.errorf("%s", problem)
		}
	}
	return p
}
