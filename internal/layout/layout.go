// Package layout holds the fixed world placement of every rentable space.
// The table is the single source of truth for space IDs, positions, and the
// reserved flag; the store is seeded from it at startup and rows are never
// added or removed at runtime.
package layout

import "github.com/Tanner253/ClubPengu-sub005/internal/store/schema"

// Spaces returns the full space table in seed order
func Spaces() []schema.Space {
	return []schema.Space{
		{SpaceID: "space1", Position: schema.Position{X: -42, Y: 0, Z: -18, Rotation: 90}},
		{SpaceID: "space2", Position: schema.Position{X: -42, Y: 0, Z: 6, Rotation: 90}},
		{SpaceID: "space3", Position: schema.Position{X: -42, Y: 0, Z: 30, Rotation: 90}},
		{SpaceID: "space4", Position: schema.Position{X: -18, Y: 0, Z: 48, Rotation: 180}},
		{SpaceID: "space5", Position: schema.Position{X: 6, Y: 0, Z: 48, Rotation: 180}},
		{SpaceID: "space6", Position: schema.Position{X: 30, Y: 0, Z: 48, Rotation: 180}},
		{SpaceID: "space7", Position: schema.Position{X: 42, Y: 0, Z: 30, Rotation: 270}},
		{SpaceID: "space8", Position: schema.Position{X: 42, Y: 0, Z: 6, Rotation: 270}},
		{SpaceID: "space9", Position: schema.Position{X: 42, Y: 0, Z: -18, Rotation: 270}},
		{SpaceID: "space10", Position: schema.Position{X: 30, Y: 0, Z: -36, Rotation: 0}},

		// Permanently assigned; never enter the rental pool
		{SpaceID: "vip1", Position: schema.Position{X: -6, Y: 0, Z: -48, Rotation: 0}, IsReserved: true},
		{SpaceID: "vip2", Position: schema.Position{X: 18, Y: 0, Z: -48, Rotation: 0}, IsReserved: true},
	}
}

// Reserved returns the IDs of the reserved spaces
func Reserved() []string {
	var out []string
	for _, space := range Spaces() {
		if space.IsReserved {
			out = append(out, space.SpaceID)
		}
	}
	return out
}
