package cityinfo

import "cityinfo.org/internal/patch"

// pointOfInterestPatchSchema lists the members a patch document may touch.
var pointOfInterestPatchSchema = patch.Schema[PointOfInterestForUpdate]{
	"/name": patch.StringField(
		func(p *PointOfInterestForUpdate) string { return p.Name },
		func(p *PointOfInterestForUpdate, v string) { p.Name = v },
	),
	"/description": patch.StringField(
		func(p *PointOfInterestForUpdate) string { return p.Description },
		func(p *PointOfInterestForUpdate, v string) { p.Description = v },
	),
}

// PatchPointOfInterest applies doc to target and re-validates the result with the
// rules used for full updates. Failures return either *patch.OperationError or
// *ValidationError; target is left as it was.
func PatchPointOfInterest(doc patch.Document, target PointOfInterestForUpdate) (PointOfInterestForUpdate, error) {
	return patch.Apply(doc, target, pointOfInterestPatchSchema, PointOfInterestForUpdate.Validate)
}
