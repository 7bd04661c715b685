package docmodel

import "github.com/osapiref/osapiref/internal/spec"

// MatchResponse picks the response variant documenting action. Members of a
// oneOf are candidates; a schema without oneOf is its own single candidate.
// The first candidate whose x-openstack action-name equals action wins. It
// returns nil when nothing matches, which is normal for actions that respond
// without a body.
func MatchResponse(schema *spec.Node, action string) *spec.Node {
	if action == "" || !schema.IsObject() {
		return nil
	}
	candidates := schema.Get("oneOf").Items()
	if len(candidates) == 0 {
		candidates = []*spec.Node{schema}
	}
	// Duplicate action names document the earliest declaration, not the last.
	for _, c := range candidates {
		if extension(c, "action-name").Text() == action {
			return c
		}
	}
	return nil
}
