package intel

import "strings"

// Normalize flattens per-source records into canonical indicators. It
// is a pure function and total: records missing expected fields yield
// indicators with empty label sets instead of failing the aggregation.
func Normalize(records []Record) []NormalizedIndicator {
	var out []NormalizedIndicator
	for _, rec := range records {
		switch r := rec.(type) {
		case *MISPRecord:
			for _, ev := range r.Events {
				out = append(out, normalizeMISPEvent(ev))
			}
		case *OpenCTIRecord:
			for _, ind := range r.Indicators {
				out = append(out, normalizeOpenCTIIndicator(ind))
			}
		}
	}
	return out
}

// normalizeMISPEvent extracts labels from event tags and attribute
// categories. MISP events carry no per-indicator confidence.
func normalizeMISPEvent(ev MISPEvent) NormalizedIndicator {
	labels := make([]string, 0, len(ev.Tag)+len(ev.Attribute))
	for _, tag := range ev.Tag {
		if name := normalizeLabel(tag.Name); name != "" {
			labels = append(labels, name)
		}
	}
	for _, attr := range ev.Attribute {
		if cat := normalizeLabel(attr.Category); cat != "" {
			labels = append(labels, cat)
		}
	}

	return NormalizedIndicator{
		Source:     string(SourceMISP),
		Labels:     labels,
		ObservedAt: ev.ObservedTime(),
	}
}

// normalizeOpenCTIIndicator extracts labels from the indicator's label
// connection and carries its confidence through.
func normalizeOpenCTIIndicator(ind OpenCTIIndicator) NormalizedIndicator {
	labels := make([]string, 0, len(ind.ObjectLabel.Edges))
	for _, raw := range ind.LabelValues() {
		if label := normalizeLabel(raw); label != "" {
			labels = append(labels, label)
		}
	}

	return NormalizedIndicator{
		Source:     string(SourceOpenCTI),
		Labels:     labels,
		Confidence: ind.Confidence,
		ObservedAt: ind.ObservedTime(),
	}
}

// normalizeLabel lowercases a raw tag or category and strips MISP
// taxonomy prefixes like `misp-galaxy:` so labels dedup across sources.
// A tag such as `misp-galaxy:malware="emotet"` normalizes to "malware".
func normalizeLabel(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(label, ":"); idx >= 0 && idx < len(label)-1 {
		label = label[idx+1:]
	}
	if idx := strings.Index(label, "="); idx >= 0 {
		label = label[:idx]
	}
	return strings.TrimSpace(label)
}
