package transform

import (
	"log/slog"
	"regexp"

	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/portal"
)

var documentTitle = regexp.MustCompile(`(?i)\.(png|jpg|docx|pptx)$`)

// positionalIndex is where the portal puts the viewable URL of a non-document
// material.
const positionalIndex = 2

// LinkedEntry is a homework entry together with the links extracted from its
// additional materials.
type LinkedEntry struct {
	portal.HomeworkEntry
	Links []domain.LinkInfo
}

// AttachLinks extracts links for every entry of split. Materials whose shape
// is not understood are logged and skipped; the entry is always kept.
func AttachLinks(split Split[portal.HomeworkEntry], logger *slog.Logger) Split[LinkedEntry] {
	if logger == nil {
		logger = slog.Default()
	}

	out := Split[LinkedEntry]{
		Window: split.Window,
		Days:   make(map[string][]LinkedEntry, len(split.Days)),
	}
	for day, entries := range split.Days {
		linked := make([]LinkedEntry, 0, len(entries))
		for _, e := range entries {
			linked = append(linked, LinkedEntry{HomeworkEntry: e, Links: linksOf(e, logger)})
		}
		out.Days[day] = linked
	}
	return out
}

func linksOf(e portal.HomeworkEntry, logger *slog.Logger) []domain.LinkInfo {
	var links []domain.LinkInfo
	seen := make(map[string]bool)

	for _, material := range e.AdditionalMaterials {
		for _, item := range material.Items {
			var link domain.LinkInfo
			if documentTitle.MatchString(item.Title) {
				link = domain.LinkInfo{Title: item.Title, URL: item.Link}
			} else {
				u, ok := positionalURL(item)
				if !ok {
					logger.Warn("Dropping material link with unexpected shape",
						"subject", e.SubjectName,
						"date", e.Date,
						"material_type", material.Type,
						"urls", len(item.URLs))
					continue
				}
				link = domain.LinkInfo{Title: item.Title, URL: u}
			}

			if link.URL == "" || seen[link.URL] {
				continue
			}
			if link.Title == "" {
				link.Title = link.URL
			}
			seen[link.URL] = true
			links = append(links, link)
		}
	}
	return links
}

// positionalURL reads the URL the portal keeps at a fixed position of the
// item's urls list. It is the only place that knows about that layout.
func positionalURL(item portal.MaterialItem) (string, bool) {
	if len(item.URLs) <= positionalIndex {
		return "", false
	}
	u := item.URLs[positionalIndex].URL
	if u == "" {
		return "", false
	}
	return u, true
}
