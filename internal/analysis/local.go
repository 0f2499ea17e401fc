package analysis

import (
	"fmt"
	"strings"

	"github.com/sells-group/compare-engine/internal/entity"
)

// NoSelection is returned when either side of a comparison is missing.
const NoSelection = "Please select two developers to compare."

// LocalSummary builds a rule-based comparison of a and b. It needs no network
// and never fails.
func LocalSummary(a, b *entity.Entity) string {
	if a == nil || b == nil {
		return NoSelection
	}
	nameA := displayName(a.Name, "Developer A")
	nameB := displayName(b.Name, "Developer B")

	var lines []string
	if a.Region != "" && b.Region != "" && a.Region != b.Region {
		lines = append(lines, fmt.Sprintf("%s operates mainly in %s, while %s focuses on %s.", nameA, a.Region, nameB, b.Region))
	}
	if a.ProjectCount != b.ProjectCount {
		lines = append(lines, fmt.Sprintf("%s lists %d projects, compared to %d for %s.", nameA, a.ProjectCount, b.ProjectCount, nameB))
	}
	if a.Founded != "" && b.Founded != "" && a.Founded != b.Founded {
		lines = append(lines, fmt.Sprintf("%s was founded in %s, while %s was founded in %s.", nameA, a.Founded, nameB, b.Founded))
	}
	switch {
	case a.Description != "" && b.Description == "":
		lines = append(lines, fmt.Sprintf("%s provides a detailed company description, unlike %s.", nameA, nameB))
	case b.Description != "" && a.Description == "":
		lines = append(lines, fmt.Sprintf("%s provides a detailed company description, unlike %s.", nameB, nameA))
	}

	if len(lines) == 0 {
		return fmt.Sprintf("Both %s and %s appear similar based on available data.", nameA, nameB)
	}
	return strings.Join(lines, " ")
}

func displayName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
