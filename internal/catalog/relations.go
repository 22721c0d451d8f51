package catalog

import "campus-backend/internal/metadata"

func relations() []*metadata.Relation {
	return []*metadata.Relation{
		{Name: "campus", Kind: "belongs_to", Owner: "building", Target: "campus", ForeignKey: "campus_id"},
		{Name: "buildings", Kind: "has_many", Owner: "campus", Target: "building", ForeignKey: "campus_id"},

		{Name: "building", Kind: "belongs_to", Owner: "department", Target: "building", ForeignKey: "building_id"},
		{Name: "departments", Kind: "has_many", Owner: "building", Target: "department", ForeignKey: "building_id"},

		{Name: "logo", Kind: "belongs_to", Owner: "organization", Target: "file", ForeignKey: "logo_id"},
		{Name: "tags", Kind: "many_to_many", Owner: "organization", Target: "tag",
			JoinTable: "organization_tags", OwnerJoinKey: "organization_id", TargetJoinKey: "tag_id"},

		{Name: "icon", Kind: "belongs_to", Owner: "guide", Target: "file", ForeignKey: "icon_id"},
		{Name: "sections", Kind: "has_many", Owner: "guide", Target: "guide_section", ForeignKey: "guide_id"},
		{Name: "guide", Kind: "belongs_to", Owner: "guide_section", Target: "guide", ForeignKey: "guide_id"},

		{Name: "image", Kind: "belongs_to", Owner: "banner", Target: "file", ForeignKey: "image_id"},
	}
}
