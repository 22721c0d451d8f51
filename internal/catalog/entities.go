package catalog

import "campus-backend/internal/metadata"

func uuidPK() metadata.PrimaryKey {
	return metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true}
}

func timestamps() []metadata.Field {
	return []metadata.Field{
		{Name: "created_at", Type: metadata.TypeDateTime, Auto: "create"},
		{Name: "updated_at", Type: metadata.TypeDateTime, Auto: "update"},
	}
}

func withTimestamps(fields []metadata.Field) []metadata.Field {
	return append(fields, timestamps()...)
}

func campusEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "campus",
		Table:      "campuses",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeText, Required: true, Unique: true},
			{Name: "city", Type: metadata.TypeText, Nullable: true},
		}),
	}
}

func buildingEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "building",
		Table:      "buildings",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeText, Required: true},
			{Name: "campus_id", Type: metadata.TypeRef, Ref: "campus", Required: true, OnDelete: "cascade"},
			{Name: "address", Type: metadata.TypeText, Nullable: true},
			{Name: "latitude", Type: metadata.TypeReal, Nullable: true,
				Rule:    "value < -90 || value > 90",
				Message: "latitude must be between -90 and 90"},
			{Name: "longitude", Type: metadata.TypeReal, Nullable: true,
				Rule:    "value < -180 || value > 180",
				Message: "longitude must be between -180 and 180"},
		}),
	}
}

func departmentEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "department",
		Table:      "departments",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeText, Required: true},
			{Name: "building_id", Type: metadata.TypeRef, Ref: "building", Required: true, OnDelete: "cascade"},
			{Name: "room", Type: metadata.TypeText, Nullable: true},
			{Name: "phone", Type: metadata.TypeText, Nullable: true},
		}),
	}
}

func organizationEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "organization",
		Table:      "organizations",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeText, Required: true, Unique: true},
			{Name: "category", Type: metadata.TypeEnum, Required: true,
				Enum: []string{"academic", "cultural", "sports", "social", "media"}},
			{Name: "description", Type: metadata.TypeText, Nullable: true, RichText: true},
			{Name: "logo_id", Type: metadata.TypeRef, Ref: "file", Nullable: true, OnDelete: "set_null"},
			{Name: "email", Type: metadata.TypeText, Nullable: true,
				Rule:    `value != "" && not (value matches "^[^@\\s]+@[^@\\s]+$")`,
				Message: "email must be a valid address"},
			{Name: "ord", Type: metadata.TypeReal, Nullable: true},
		}),
	}
}

func tagEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "tag",
		Table:      "tags",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeText, Required: true, Unique: true},
		}),
	}
}

func guideEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "guide",
		Table:      "guides",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "title", Type: metadata.TypeText, Required: true},
			{Name: "body", Type: metadata.TypeText, Nullable: true, RichText: true},
			{Name: "icon_id", Type: metadata.TypeRef, Ref: "file", Nullable: true, OnDelete: "set_null"},
			{Name: "ord", Type: metadata.TypeReal, Nullable: true},
			{Name: "views", Type: metadata.TypeBigint},
		}),
	}
}

func guideSectionEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "guide_section",
		Table:      "guide_sections",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "guide_id", Type: metadata.TypeRef, Ref: "guide", Required: true, OnDelete: "cascade"},
			{Name: "title", Type: metadata.TypeText, Required: true},
			{Name: "body", Type: metadata.TypeText, Nullable: true, RichText: true},
			{Name: "ord", Type: metadata.TypeReal, Nullable: true},
		}),
	}
}

func versionEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "version",
		Table:      "versions",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeText, Required: true, Unique: true},
			{Name: "release_date", Type: metadata.TypeDate, Required: true},
			{Name: "changelog", Type: metadata.TypeText, Nullable: true, RichText: true},
		}),
	}
}

func bannerEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "banner",
		Table:      "banners",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "title", Type: metadata.TypeText, Required: true},
			{Name: "image_id", Type: metadata.TypeRef, Ref: "file", Nullable: true, OnDelete: "set_null"},
			{Name: "url", Type: metadata.TypeText, Nullable: true},
			{Name: "visible_from", Type: metadata.TypeDateTime, Nullable: true},
			{Name: "visible_until", Type: metadata.TypeDateTime, Nullable: true},
		}),
	}
}

func fileEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "file",
		Table:      "files",
		PrimaryKey: uuidPK(),
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "name", Type: metadata.TypeText, Required: true},
			{Name: "path", Type: metadata.TypeText, Required: true},
			{Name: "mime_type", Type: metadata.TypeText, Required: true},
			{Name: "size", Type: metadata.TypeBigint, Required: true},
			{Name: "created_at", Type: metadata.TypeDateTime, Auto: "create"},
		},
	}
}

func appInfoEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "app_info",
		Table:      "app_info",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: false},
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeInt, Required: true},
			{Name: "name", Type: metadata.TypeText, Required: true},
			{Name: "about", Type: metadata.TypeText, Nullable: true, RichText: true},
			{Name: "contact_email", Type: metadata.TypeText, Nullable: true,
				Rule:    `value != "" && not (value matches "^[^@\\s]+@[^@\\s]+$")`,
				Message: "contact_email must be a valid address"},
			{Name: "privacy_url", Type: metadata.TypeText, Nullable: true},
		}),
	}
}

func refreshTokenEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "refresh_token",
		Table:      "refresh_tokens",
		PrimaryKey: uuidPK(),
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "user_id", Type: metadata.TypeRef, Ref: "user", Required: true, OnDelete: "cascade"},
			{Name: "token", Type: metadata.TypeText, Required: true, Unique: true},
			{Name: "expires_at", Type: metadata.TypeDateTime, Required: true},
			{Name: "created_at", Type: metadata.TypeDateTime, Auto: "create"},
		},
	}
}

func userEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "user",
		Table:      "users",
		PrimaryKey: uuidPK(),
		Fields: withTimestamps([]metadata.Field{
			{Name: "id", Type: metadata.TypeUUID},
			{Name: "email", Type: metadata.TypeText, Required: true, Unique: true,
				Rule:    `not (value matches "^[^@\\s]+@[^@\\s]+$")`,
				Message: "email must be a valid address"},
			{Name: "password_hash", Type: metadata.TypeText, Required: true},
			{Name: "name", Type: metadata.TypeText, Required: true},
			{Name: "role", Type: metadata.TypeEnum, Required: true,
				Enum: []string{"admin", "reviewer", "editor"}},
		}),
	}
}
