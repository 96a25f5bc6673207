package writing

import (
	"fmt"
	"strings"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// MermaidDiagram renders the PRISMA funnel as a Mermaid flowchart. Stages
// that were never recorded are omitted; the duplicates-removed delta is
// annotated on the edge into the deduplicated node when both are known.
func MermaidDiagram(prisma *domain.PRISMACounts) string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	nodes := []struct {
		id    string
		label string
		stage string
	}{
		{"found", "Records identified", domain.PRISMAFound},
		{"nodupes", "Records after duplicates removed", domain.PRISMANoDupes},
		{"screened", "Records screened on title/abstract", domain.PRISMAScreened},
		{"fulltext", "Full-text articles assessed", domain.PRISMAFullTextAssessed},
		{"included", "Studies included in review", domain.PRISMAIncluded},
	}

	prev := ""
	for _, n := range nodes {
		count := -1
		if prisma != nil {
			count = prisma.Get(n.stage)
		}
		if count < 0 {
			continue
		}

		fmt.Fprintf(&sb, "    %s[\"%s (n=%d)\"]\n", n.id, n.label, count)
		if prev != "" {
			edge := fmt.Sprintf("    %s --> %s\n", prev, n.id)
			if n.id == "nodupes" {
				if removed := prisma.Get(domain.PRISMADuplicatesRemoved); removed >= 0 {
					edge = fmt.Sprintf("    %s -->|%d duplicates removed| %s\n", prev, removed, n.id)
				}
			}
			sb.WriteString(edge)
		}
		prev = n.id
	}

	return sb.String()
}
