package catalog

import (
	"campus-backend/internal/metadata"
	"campus-backend/internal/moderation"
)

// Load populates the registry with the full domain catalog: approved
// entities, their derived draft entities, relations, and resource
// configurations.
func Load(reg *metadata.Registry) error {
	organization := organizationEntity()
	guide := guideEntity()

	entities := []*metadata.Entity{
		campusEntity(),
		buildingEntity(),
		departmentEntity(),
		organization,
		tagEntity(),
		guide,
		guideSectionEntity(),
		versionEntity(),
		bannerEntity(),
		fileEntity(),
		appInfoEntity(),
		userEntity(),
		refreshTokenEntity(),
		// Draft tables derive from the approved definitions. The guide's
		// view counter stays out of the draft; it belongs to the live row.
		moderation.DraftEntity(organization),
		moderation.DraftEntity(guide, "views"),
	}

	return reg.Load(entities, relations(), resources())
}

func resources() []*metadata.ResourceConfig {
	return []*metadata.ResourceConfig{
		{
			Entity:         "campus",
			QueryRelations: []string{"buildings"},
			NavGroup:       "Campus",
		},
		{
			Entity:         "building",
			QueryRelations: []string{"campus", "departments"},
			NavGroup:       "Campus",
		},
		{
			Entity:         "department",
			QueryRelations: []string{"building"},
			NavGroup:       "Campus",
		},
		{
			Entity:         "organization",
			QueryRelations: []string{"logo", "tags"},
			CrudRelations:  []string{"tags"},
			NavGroup:       "Content",
			Moderated:      true,
		},
		{
			Entity:   "tag",
			NavGroup: "Content",
		},
		{
			Entity:         "guide",
			QueryRelations: []string{"icon", "sections"},
			CrudRelations:  []string{"sections"},
			NavGroup:       "Content",
			Moderated:      true,
			Hooks:          guideHooks(),
		},
		{
			Entity:         "guide_section",
			QueryRelations: []string{"guide"},
			NavGroup:       "Content",
		},
		{
			Entity:   "version",
			NavGroup: "App",
		},
		{
			Entity:         "banner",
			QueryRelations: []string{"image"},
			NavGroup:       "App",
			Hooks:          bannerHooks(),
		},
		{
			Entity:   "file",
			NavGroup: "App",
		},
		{
			Entity:      "app_info",
			SingletonID: 1,
			NavGroup:    "App",
		},
		{
			Entity:   "user",
			NavGroup: "System",
		},
	}
}
